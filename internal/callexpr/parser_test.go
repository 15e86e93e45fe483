// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package callexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/scripthost/pkg/errutil"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		plugin   string
		function string
		args     []any
		result   string
	}{
		{"no args", "foo.test()", "foo", "test", []any{}, ResultAny},
		{"mixed args", `foo.test2("hi", 1.5, true)`, "foo", "test2", []any{"hi", 1.5, true}, ResultAny},
		{"result kind", "foo.test3_int() : int", "foo", "test3_int", []any{}, ResultInt},
		{"void", "foo.test():void", "foo", "test", []any{}, ResultVoid},
		{"negative numbers", "m.add(-2, -0.5)", "m", "add", []any{int64(-2), -0.5}, ResultAny},
		{"exponent", "m.scale(1e3, 2.5E-1)", "m", "scale", []any{1000.0, 0.25}, ResultAny},
		{"nil and false", "p.f(nil, false)", "p", "f", []any{nil, false}, ResultAny},
		{"escaped string", `p.say("a \"quoted\"\nline")`, "p", "say", []any{"a \"quoted\"\nline"}, ResultAny},
		{"lists", `p.sum([1, 2, [3]], [])`, "p", "sum", []any{
			[]any{int64(1), int64(2), []any{int64(3)}},
			[]any{},
		}, ResultAny},
		{"hyphenated plugin", "my-plugin.run() : records", "my-plugin", "run", []any{}, ResultRecords},
		{"whitespace", "  foo . test ( 1 , 2 )  ", "foo", "test", []any{int64(1), int64(2)}, ResultAny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := Parse(tt.expr)
			require.NoError(t, err)

			assert.Equal(t, tt.plugin, call.Plugin)
			assert.Equal(t, tt.function, call.Function)
			assert.Equal(t, tt.args, call.Arguments())
			assert.Equal(t, tt.result, call.Result)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"no plugin", "test()"},
		{"no parens", "foo.test"},
		{"unterminated string", `foo.test("oops)`},
		{"trailing comma", "foo.test(1,)"},
		{"bare identifier argument", "foo.test(bar)"},
		{"unknown result kind", "foo.test() : table"},
		{"trailing input", "foo.test() extra"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, CodeSyntax)
		})
	}
}

func TestCall_String(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{`foo.test2("hi", 1.5, true)`, `foo.test2("hi", 1.5, true)`},
		{"foo.test3_int():int", "foo.test3_int() : int"},
		{"p.f(2.0, nil, [1, [false]])", "p.f(2.0, nil, [1, [false]])"},
		{"p.f(1e21)", "p.f(1e+21)"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			call, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, call.String())

			again, err := Parse(call.String())
			require.NoError(t, err)
			assert.Equal(t, call.Arguments(), again.Arguments())
		})
	}
}
