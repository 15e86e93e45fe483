// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package exchange defines the native values that can cross into Lua and back.
//
// Primitives cross by value. Reference objects cross as Ref handles: a
// reference count shared by native holders and script-side holders, wrapping
// one *T that both sides alias. A mutation made by either side is visible to
// the other. The release hook runs only when the last holder, native or
// script, lets go.
package exchange

import (
	"fmt"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// Object is any reference object that can be pushed into the runtime.
// Only *Ref[T] implements it.
type Object interface {
	// ClassName is the script-visible type name.
	ClassName() string
	// Target returns the aliased native value, a *T.
	Target() any

	hold()
	drop()
	pushTo(L *lua.LState) lua.LValue
}

// Ref is a reference-counted handle on a native value shared with scripts.
type Ref[T any] struct {
	ptr      *T
	cls      *Class[T]
	count    atomic.Int64
	released atomic.Bool
}

var _ Object = (*Ref[struct{}])(nil)

// Get returns the shared value. Writes through it are visible to scripts.
func (r *Ref[T]) Get() *T {
	return r.ptr
}

// Target implements Object.
func (r *Ref[T]) Target() any {
	return r.ptr
}

// ClassName implements Object.
func (r *Ref[T]) ClassName() string {
	return r.cls.name
}

// Retain adds a native holder and returns the same handle.
func (r *Ref[T]) Retain() *Ref[T] {
	r.hold()
	return r
}

// Release drops a native holder. The object may stay alive if a script still
// references it.
func (r *Ref[T]) Release() {
	r.drop()
}

// Count returns the number of live holders, native and script-side.
func (r *Ref[T]) Count() int64 {
	return r.count.Load()
}

// Released reports whether the last holder has let go.
func (r *Ref[T]) Released() bool {
	return r.released.Load()
}

// Same reports whether both handles alias the same native value.
func (r *Ref[T]) Same(other *Ref[T]) bool {
	return other != nil && r.ptr == other.ptr
}

func (r *Ref[T]) String() string {
	return fmt.Sprintf("%s(%p, refs=%d)", r.cls.name, r.ptr, r.Count())
}

func (r *Ref[T]) hold() {
	r.count.Add(1)
}

func (r *Ref[T]) drop() {
	n := r.count.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("exchange: %s released more times than retained", r.cls.name))
	}
	if n == 0 && r.released.CompareAndSwap(false, true) && r.cls.onRelease != nil {
		r.cls.onRelease(r.ptr)
	}
}

func (r *Ref[T]) pushTo(L *lua.LState) lua.LValue {
	return r.cls.Push(L, r)
}

// Push converts a reference object into a script value that shares it.
func Push(L *lua.LState, obj Object) lua.LValue {
	return obj.pushTo(L)
}

// Unwrap returns the Object behind a script value, if there is one. It does
// not retain; callers that keep the object must take a holder of their own.
func Unwrap(v lua.LValue) (Object, bool) {
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return nil, false
	}
	obj, ok := ud.Value.(Object)
	return obj, ok
}

// Retain adds a holder to an untyped Object.
func Retain(obj Object) Object {
	obj.hold()
	return obj
}

// Release drops a holder from an untyped Object.
func Release(obj Object) {
	obj.drop()
}
