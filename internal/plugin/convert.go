// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"math"
	"reflect"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	luar "layeh.com/gopher-luar"

	"github.com/holomush/scripthost/internal/exchange"
)

var (
	lvalueType = reflect.TypeFor[lua.LValue]()
	objectType = reflect.TypeFor[exchange.Object]()
)

// marshal converts a native argument for scripts. Primitives cross by value,
// reference objects by shared handle, and anything else as a gopher-luar proxy.
func marshal(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case exchange.Object:
		return exchange.Push(L, val)
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(string(val))
	case []exchange.Object:
		tbl := L.CreateTable(len(val), 0)
		for _, obj := range val {
			tbl.Append(exchange.Push(L, obj))
		}
		return tbl
	case []any:
		tbl := L.CreateTable(len(val), 0)
		for _, elem := range val {
			tbl.Append(marshal(L, elem))
		}
		return tbl
	case map[string]any:
		tbl := L.CreateTable(0, len(val))
		for k, elem := range val {
			tbl.RawSetString(k, marshal(L, elem))
		}
		return tbl
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.Slice, reflect.Array:
		// A slice of *exchange.Ref[T] crosses as an array of shared handles.
		if rv.Type().Elem().Implements(objectType) {
			tbl := L.CreateTable(rv.Len(), 0)
			for i := range rv.Len() {
				tbl.Append(marshal(L, rv.Index(i).Interface()))
			}
			return tbl
		}
	}
	return luar.New(L, v)
}

// convertResult converts a script result to T. Numbers must be integral to
// become integers; strings and booleans are never coerced.
func convertResult[T any](v lua.LValue) (T, error) {
	var zero T
	typ := reflect.TypeFor[T]()

	if typ == lvalueType {
		return any(v).(T), nil
	}
	if typ.Kind() == reflect.Interface && typ.NumMethod() == 0 {
		generic := toAny(v)
		if generic == nil {
			return zero, nil
		}
		return generic.(T), nil
	}

	out := reflect.New(typ).Elem()
	switch typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := v.(lua.LNumber)
		f := float64(n)
		if !ok || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 || out.OverflowInt(int64(f)) {
			return zero, typeMismatch(typ.String(), v)
		}
		out.SetInt(int64(f))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := v.(lua.LNumber)
		f := float64(n)
		if !ok || f < 0 || f != math.Trunc(f) || f >= math.MaxUint64 || out.OverflowUint(uint64(f)) {
			return zero, typeMismatch(typ.String(), v)
		}
		out.SetUint(uint64(f))
	case reflect.Float32, reflect.Float64:
		n, ok := v.(lua.LNumber)
		if !ok {
			return zero, typeMismatch(typ.String(), v)
		}
		out.SetFloat(float64(n))
	case reflect.Bool:
		b, ok := v.(lua.LBool)
		if !ok {
			return zero, typeMismatch(typ.String(), v)
		}
		out.SetBool(bool(b))
	case reflect.String:
		s, ok := v.(lua.LString)
		if !ok {
			return zero, typeMismatch(typ.String(), v)
		}
		out.SetString(string(s))
	default:
		return zero, oops.Code(CodeTypeMismatch).
			With("target", typ.String()).
			Errorf("results cannot be converted to %s", typ)
	}
	return out.Interface().(T), nil
}

// toAny converts a script value to plain Go values. Reference objects come
// back as retained exchange.Object handles.
func toAny(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LUserData:
		if obj, ok := exchange.Unwrap(val); ok {
			return exchange.Retain(obj)
		}
		return val.Value
	case *lua.LTable:
		return tableToAny(val)
	default:
		return v
	}
}

// tableToAny converts an array to []any and any other table to map[any]any,
// converting every element with toAny.
func tableToAny(tbl *lua.LTable) any {
	if n := tbl.MaxN(); n > 0 {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			out = append(out, toAny(tbl.RawGetInt(i)))
		}
		return out
	}
	out := make(map[any]any)
	tbl.ForEach(func(k, v lua.LValue) {
		out[mapKey(k)] = toAny(v)
	})
	return out
}

// mapKey keeps non-scalar keys as script values so they stay hashable.
func mapKey(k lua.LValue) any {
	switch key := k.(type) {
	case lua.LBool:
		return bool(key)
	case lua.LNumber:
		return float64(key)
	case lua.LString:
		return string(key)
	default:
		return k
	}
}

func typeMismatch(want string, got lua.LValue) error {
	return oops.Code(CodeTypeMismatch).
		With("expected", want).
		With("got", got.Type().String()).
		Errorf("expected %s, got %s", want, got.Type())
}
