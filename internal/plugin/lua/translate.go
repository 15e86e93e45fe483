// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// Categories used as the first word of a translated script failure.
const (
	CategorySyntax       = "SyntaxError"
	CategoryFile         = "FileError"
	CategoryRuntime      = "RuntimeError"
	CategoryErrorHandler = "ErrorHandlerError"
	CategoryPanic        = "Panic"
)

// Translate renders err as a multi-line diagnostic. A script failure anywhere
// in the chain wins over host context, since its traceback is what a plugin
// author needs. Returns "" for a nil error.
func Translate(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr != nil {
		return translateScript(apiErr)
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		return translateHost(oopsErr)
	}
	return "Error: " + err.Error()
}

// Category returns the category name for a gopher-lua error type.
func Category(t lua.ApiErrorType) string {
	switch t {
	case lua.ApiErrorSyntax:
		return CategorySyntax
	case lua.ApiErrorFile:
		return CategoryFile
	case lua.ApiErrorError:
		return CategoryErrorHandler
	case lua.ApiErrorPanic:
		return CategoryPanic
	default:
		return CategoryRuntime
	}
}

func translateScript(e *lua.ApiError) string {
	msg := "unknown error"
	switch {
	case e.Object != nil && e.Object != lua.LNil:
		msg = e.Object.String()
	case e.Cause != nil:
		msg = e.Cause.Error()
	}

	var b strings.Builder
	b.WriteString(Category(e.Type))
	b.WriteString(": ")
	b.WriteString(strings.TrimSpace(msg))
	for _, line := range strings.Split(e.StackTrace, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString("\n  ")
		b.WriteString(line)
	}
	return b.String()
}

func translateHost(e oops.OopsError) string {
	code := "Error"
	if c := e.Code(); c != nil && fmt.Sprint(c) != "" {
		code = fmt.Sprint(c)
	}

	var b strings.Builder
	b.WriteString(code)
	b.WriteString(": ")
	b.WriteString(e.Error())

	ctx := e.Context()
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  %s=%v", k, ctx[k])
	}
	return b.String()
}
