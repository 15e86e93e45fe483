// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	pluginlua "github.com/holomush/scripthost/internal/plugin/lua"
)

func TestTranslate_Nil(t *testing.T) {
	assert.Equal(t, "", pluginlua.Translate(nil))
}

func TestTranslate_SyntaxError(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	_, err := L.LoadString("function (")
	require.Error(t, err)

	got := pluginlua.Translate(err)
	assert.True(t, strings.HasPrefix(got, "SyntaxError: "), "got %q", got)
}

func TestTranslate_FileError(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	_, err := L.LoadFile(filepath.Join(t.TempDir(), "missing.lua"))
	require.Error(t, err)

	got := pluginlua.Translate(err)
	assert.True(t, strings.HasPrefix(got, "FileError: "), "got %q", got)
	assert.Contains(t, got, "missing.lua")
}

func TestTranslate_RuntimeErrorIncludesTraceback(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	script := filepath.Join(t.TempDir(), "boom.lua")
	require.NoError(t, os.WriteFile(script, []byte("local function inner()\n  error('kaboom')\nend\ninner()\n"), 0o600))

	err := L.DoFile(script)
	require.Error(t, err)

	got := pluginlua.Translate(err)
	lines := strings.Split(got, "\n")
	require.Greater(t, len(lines), 1, "expected traceback lines in %q", got)
	assert.True(t, strings.HasPrefix(lines[0], "RuntimeError: "), "got %q", lines[0])
	assert.Contains(t, lines[0], "kaboom")
	assert.Contains(t, got, "stack traceback:")
}

func TestTranslate_ScriptErrorWrappedByHostError(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	luaErr := L.DoString(`error("deep")`)
	require.Error(t, luaErr)

	wrapped := oops.Code("INVOCATION_FAILURE").With("function", "f").Wrap(luaErr)
	got := pluginlua.Translate(wrapped)
	assert.True(t, strings.HasPrefix(got, "RuntimeError: "), "got %q", got)
	assert.Contains(t, got, "deep")
}

func TestTranslate_GoPanicInsideScript(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	L.SetGlobal("explode", L.NewFunction(func(*lua.LState) int {
		panic("native failure")
	}))
	err := L.DoString(`explode()`)
	require.Error(t, err)

	got := pluginlua.Translate(err)
	assert.True(t, strings.HasPrefix(got, "Panic: "), "got %q", got)
	assert.Contains(t, got, "native failure")
}

func TestTranslate_ErrorHandlerError(t *testing.T) {
	err := &lua.ApiError{Type: lua.ApiErrorError, Object: lua.LString("handler failed")}
	assert.Equal(t, "ErrorHandlerError: handler failed", pluginlua.Translate(err))
}

func TestTranslate_HostErrorListsSortedContext(t *testing.T) {
	err := oops.Code("SYMBOL_NOT_FOUND").
		With("plugin", "foo").
		With("function", "missing").
		Errorf("no such function")

	got := pluginlua.Translate(err)
	assert.Equal(t, "SYMBOL_NOT_FOUND: no such function\n  function=missing\n  plugin=foo", got)
}

func TestTranslate_HostErrorWithoutCode(t *testing.T) {
	got := pluginlua.Translate(oops.Errorf("plain"))
	assert.Equal(t, "Error: plain", got)
}

func TestTranslate_PlainError(t *testing.T) {
	assert.Equal(t, "Error: nope", pluginlua.Translate(errors.New("nope")))
}

func TestTranslate_ApiErrorWithoutObject(t *testing.T) {
	assert.NotPanics(t, func() {
		got := pluginlua.Translate(&lua.ApiError{Type: lua.ApiErrorRun})
		assert.Equal(t, "RuntimeError: unknown error", got)
	})
}

func TestCategory(t *testing.T) {
	tests := []struct {
		typ  lua.ApiErrorType
		want string
	}{
		{lua.ApiErrorSyntax, pluginlua.CategorySyntax},
		{lua.ApiErrorFile, pluginlua.CategoryFile},
		{lua.ApiErrorRun, pluginlua.CategoryRuntime},
		{lua.ApiErrorError, pluginlua.CategoryErrorHandler},
		{lua.ApiErrorPanic, pluginlua.CategoryPanic},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, pluginlua.Category(tt.typ))
		})
	}
}
