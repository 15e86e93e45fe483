// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package callexpr parses the call expressions accepted on the command line,
// such as
//
//	foo.test2("hi", 1.5, true)
//	foo.test3_int() : int
//	records.make(3) : records
//
// An expression names a plugin, a function, literal arguments and an
// optional result kind.
package callexpr

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var callLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Float", Pattern: `-?\d+(\.\d+([eE][-+]?\d+)?|[eE][-+]?\d+)`},
	{Name: "Int", Pattern: `-?\d+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_-]*`},
	{Name: "Punct", Pattern: `[().,:\[\]]`},
	{Name: "whitespace", Pattern: `\s+`},
})

// Call is one parsed expression.
//
// Grammar: plugin "." function "(" [ value { "," value } ] ")" [ ":" kind ]
type Call struct {
	Pos      lexer.Position `parser:""`
	Plugin   string         `parser:"@Ident '.'"`
	Function string         `parser:"@Ident"`
	Args     []*Value       `parser:"'(' (@@ (',' @@)*)? ')'"`
	Result   string         `parser:"(':' @Ident)?"`
}

// Value is a literal argument.
type Value struct {
	Pos    lexer.Position `parser:""`
	Str    *string        `parser:"  @String"`
	Float  *float64       `parser:"| @Float"`
	Int    *int64         `parser:"| @Int"`
	Bool   *Boolean       `parser:"| @('true' | 'false')"`
	Nil    bool           `parser:"| @'nil'"`
	List   *List          `parser:"| @@"`
}

// List is a bracketed array literal.
type List struct {
	Items []*Value `parser:"'[' (@@ (',' @@)*)? ']'"`
}

// Boolean captures the true and false keywords.
type Boolean bool

// Capture implements participle.Capture.
func (b *Boolean) Capture(values []string) error {
	*b = values[0] == "true"
	return nil
}

// NewParser constructs a participle parser for the Call grammar.
func NewParser() (*participle.Parser[Call], error) {
	return participle.Build[Call](
		participle.Lexer(callLexer),
		participle.Unquote("String"),
	)
}
