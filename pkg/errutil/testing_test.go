// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/holomush/scripthost/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("MY_CODE").Errorf("test error")
	errutil.AssertErrorCode(t, err, "MY_CODE")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("plugin", "echo").Errorf("test error")
	errutil.AssertErrorContext(t, err, "plugin", "echo")
}

func TestAssertErrorHint_Substring(t *testing.T) {
	err := oops.Hint("run `scripthost migrate up` first").Errorf("test error")
	errutil.AssertErrorHint(t, err, "migrate up")
}
