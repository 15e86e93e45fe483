// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package hostfunc_test tests host function implementations.
package hostfunc_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scripthost/internal/plugin/capability"
	"github.com/holomush/scripthost/internal/plugin/hostfunc"
	"github.com/holomush/scripthost/internal/store"
)

type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string, string) ([]byte, error) { return nil, f.err }

func (f failingKV) Set(context.Context, string, string, []byte) error { return f.err }

func (f failingKV) Delete(context.Context, string, string) error { return f.err }

func newState(t *testing.T, hf *hostfunc.Functions, plugin string) *lua.LState {
	t.Helper()
	L := lua.NewState()
	t.Cleanup(L.Close)
	hf.Install(L, L.G.Global, plugin)
	return L
}

func grant(t *testing.T, plugin string, caps ...string) *capability.Enforcer {
	t.Helper()
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants(plugin, caps))
	return e
}

func TestNew_NilEnforcerPanics(t *testing.T) {
	assert.Panics(t, func() { hostfunc.New(nil, nil) })
}

func TestHostFunctions_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hf := hostfunc.New(nil, capability.NewEnforcer(), hostfunc.WithLogger(logger))

	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			buf.Reset()
			L := newState(t, hf, "test-plugin")

			require.NoError(t, L.DoString(`host.log("`+level+`", "test message")`))
			assert.Contains(t, buf.String(), "test message")
			assert.Contains(t, buf.String(), "plugin=test-plugin")
		})
	}
}

func TestHostFunctions_Log_InvalidLevel(t *testing.T) {
	hf := hostfunc.New(nil, capability.NewEnforcer())

	for _, level := range []string{"warning", "erro", "INFO", "trace"} {
		t.Run(level, func(t *testing.T) {
			L := newState(t, hf, "test-plugin")

			err := L.DoString(`host.log("` + level + `", "test message")`)
			require.Error(t, err, "invalid level %q must raise", level)
			assert.Contains(t, err.Error(), "log level must be one of")
		})
	}
}

func TestHostFunctions_NewID(t *testing.T) {
	L := newState(t, hostfunc.New(nil, capability.NewEnforcer()), "test-plugin")

	require.NoError(t, L.DoString(`a = host.new_id(); b = host.new_id()`))
	a := L.GetGlobal("a").String()
	b := L.GetGlobal("b").String()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

func TestHostFunctions_KV_RequiresCapability(t *testing.T) {
	hf := hostfunc.New(store.NewMemoryKV(), capability.NewEnforcer())
	L := newState(t, hf, "test-plugin")

	for _, call := range []string{`host.kv_get("k")`, `host.kv_set("k", "v")`, `host.kv_delete("k")`} {
		err := L.DoString(call)
		require.Error(t, err, call)
		assert.Contains(t, err.Error(), "capability denied")
	}
}

func TestHostFunctions_KV_ReadOnlyGrant(t *testing.T) {
	hf := hostfunc.New(store.NewMemoryKV(), grant(t, "test-plugin", hostfunc.CapKVRead))
	L := newState(t, hf, "test-plugin")

	require.NoError(t, L.DoString(`v, err = host.kv_get("k")`))
	assert.Equal(t, lua.LNil, L.GetGlobal("v"))
	assert.Equal(t, lua.LNil, L.GetGlobal("err"))

	err := L.DoString(`host.kv_set("k", "v")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kv.write")
}

func TestHostFunctions_KV_RoundTrip(t *testing.T) {
	kv := store.NewMemoryKV()
	hf := hostfunc.New(kv, grant(t, "test-plugin", "kv.*"))
	L := newState(t, hf, "test-plugin")

	require.NoError(t, L.DoString(`
		assert(host.kv_set("greeting", "hello") == nil)
		local v, err = host.kv_get("greeting")
		assert(err == nil)
		assert(v == "hello", v)
		assert(host.kv_delete("greeting") == nil)
		v = host.kv_get("greeting")
		assert(v == nil)
	`))
}

func TestHostFunctions_KV_NamespacedByPlugin(t *testing.T) {
	kv := store.NewMemoryKV()
	enforcer := capability.NewEnforcer()
	require.NoError(t, enforcer.SetGrants("alpha", []string{"kv.**"}))
	require.NoError(t, enforcer.SetGrants("beta", []string{"kv.**"}))
	hf := hostfunc.New(kv, enforcer)

	alpha := newState(t, hf, "alpha")
	beta := newState(t, hf, "beta")

	require.NoError(t, alpha.DoString(`host.kv_set("shared", "from alpha")`))
	require.NoError(t, beta.DoString(`v = host.kv_get("shared")`))
	assert.Equal(t, lua.LNil, beta.GetGlobal("v"))

	value, err := kv.Get(context.Background(), "alpha", "shared")
	require.NoError(t, err)
	assert.Equal(t, []byte("from alpha"), value)
}

func TestHostFunctions_KV_Unavailable(t *testing.T) {
	hf := hostfunc.New(nil, grant(t, "test-plugin", "kv.**"))
	L := newState(t, hf, "test-plugin")

	require.NoError(t, L.DoString(`v, err = host.kv_get("k"); serr = host.kv_set("k", "v")`))
	assert.Equal(t, lua.LNil, L.GetGlobal("v"))
	assert.Equal(t, lua.LString("kv store not available"), L.GetGlobal("err"))
	assert.Equal(t, lua.LString("kv store not available"), L.GetGlobal("serr"))
}

func TestHostFunctions_KV_StoreErrorsReturnToScript(t *testing.T) {
	hf := hostfunc.New(failingKV{err: errors.New("disk on fire")}, grant(t, "test-plugin", "kv.**"))
	L := newState(t, hf, "test-plugin")

	require.NoError(t, L.DoString(`
		v, gerr = host.kv_get("k")
		serr = host.kv_set("k", "v")
		derr = host.kv_delete("k")
	`))
	for _, name := range []string{"gerr", "serr", "derr"} {
		assert.Equal(t, lua.LString("disk on fire"), L.GetGlobal(name), name)
	}
}

func TestHostFunctions_InstallSeedsNamespaceOnly(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	env := L.NewTable()
	hostfunc.New(nil, capability.NewEnforcer()).Install(L, env, "test-plugin")

	assert.Equal(t, lua.LTTable, env.RawGetString(hostfunc.TableName).Type())
	assert.Equal(t, lua.LNil, L.GetGlobal(hostfunc.TableName))
}
