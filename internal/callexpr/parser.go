// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package callexpr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/samber/oops"
)

// CodeSyntax marks an expression that does not parse.
const CodeSyntax = "CALLEXPR_SYNTAX"

// Result kinds. ResultAny is used when the expression names none.
const (
	ResultVoid    = "void"
	ResultAny     = "any"
	ResultInt     = "int"
	ResultFloat   = "float"
	ResultString  = "string"
	ResultBool    = "bool"
	ResultRecord  = "record"
	ResultRecords = "records"
)

var resultKinds = map[string]bool{
	ResultVoid: true, ResultAny: true, ResultInt: true, ResultFloat: true,
	ResultString: true, ResultBool: true, ResultRecord: true, ResultRecords: true,
}

var parser *participle.Parser[Call]

func init() {
	var err error
	parser, err = NewParser()
	if err != nil {
		panic(fmt.Sprintf("failed to build call expression parser: %v", err))
	}
}

// Parse parses a single call expression.
func Parse(expr string) (*Call, error) {
	call, err := parser.ParseString("", expr)
	if err != nil {
		return nil, oops.In("callexpr").Code(CodeSyntax).With("expr", expr).Wrapf(err, "parse call expression")
	}
	if call.Result == "" {
		call.Result = ResultAny
	}
	if !resultKinds[call.Result] {
		return nil, oops.In("callexpr").Code(CodeSyntax).
			With("expr", expr).
			With("result", call.Result).
			Errorf("%s: unknown result kind %q", call.Pos, call.Result)
	}
	return call, nil
}

// Arguments returns the argument values as native Go values: string, int64,
// float64, bool, nil and []any.
func (c *Call) Arguments() []any {
	out := make([]any, len(c.Args))
	for i, v := range c.Args {
		out[i] = v.Go()
	}
	return out
}

// Go returns the native value of v.
func (v *Value) Go() any {
	switch {
	case v.Str != nil:
		return *v.Str
	case v.Float != nil:
		return *v.Float
	case v.Int != nil:
		return *v.Int
	case v.Bool != nil:
		return bool(*v.Bool)
	case v.List != nil:
		items := make([]any, len(v.List.Items))
		for i, item := range v.List.Items {
			items[i] = item.Go()
		}
		return items
	default:
		return nil
	}
}

// String renders v back in expression syntax.
func (v *Value) String() string {
	switch {
	case v.Str != nil:
		return strconv.Quote(*v.Str)
	case v.Float != nil:
		s := strconv.FormatFloat(*v.Float, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case v.Int != nil:
		return strconv.FormatInt(*v.Int, 10)
	case v.Bool != nil:
		return strconv.FormatBool(bool(*v.Bool))
	case v.List != nil:
		items := make([]string, len(v.List.Items))
		for i, item := range v.List.Items {
			items[i] = item.String()
		}
		return "[" + strings.Join(items, ", ") + "]"
	default:
		return "nil"
	}
}

// String renders c back in expression syntax.
func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	s := c.Plugin + "." + c.Function + "(" + strings.Join(args, ", ") + ")"
	if c.Result != "" && c.Result != ResultAny {
		s += " : " + c.Result
	}
	return s
}
