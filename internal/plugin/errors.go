// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"errors"

	"github.com/samber/oops"

	"github.com/holomush/scripthost/internal/vm"
)

// Error codes attached to every failure this package produces.
const (
	CodeLoadFailure       = "LOAD_FAILURE"
	CodeSymbolNotFound    = "SYMBOL_NOT_FOUND"
	CodeNotCallable       = "NOT_CALLABLE"
	CodeInvocationFailure = "INVOCATION_FAILURE"
	CodeTypeMismatch      = "TYPE_MISMATCH"
	CodeLifecycleMisuse   = vm.CodeLifecycleMisuse
	CodeNotFound          = "NOT_FOUND"
)

// ErrInvocationFailed is wrapped by every error a typed call returns.
var ErrInvocationFailed = errors.New("plugin invocation failed")

// KindOf returns the error code carried by err, or "" when err is nil or
// carries none.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}
