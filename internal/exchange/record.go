// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package exchange

import "fmt"

// Record is the sample reference type shipped with the host. Scripts build
// one with require("record").new{a_int = 1, a_string = "x"}.
type Record struct {
	AInt    int     `lua:"a_int"`
	AFloat  float32 `lua:"a_float"`
	ADouble float64 `lua:"a_double"`
	ABool   bool    `lua:"a_bool"`
	AString string  `lua:"a_string"`
}

// ToStr renders every field.
func (r *Record) ToStr() string {
	return fmt.Sprintf("Record( a_int=%d, a_float=%g, a_double=%g, a_bool=%t, a_string=%s )",
		r.AInt, r.AFloat, r.ADouble, r.ABool, r.AString)
}

// RecordClass is the binding for Record.
var RecordClass = NewClass[Record]("Record",
	WithMethod("toStr", func(r *Record) any { return r.ToStr() }),
	WithStringer((*Record).ToStr),
)
