// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package exchange

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/samber/oops"
	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"
	luar "layeh.com/gopher-luar"
)

// fieldTag is the struct tag naming a field as scripts see it.
const fieldTag = "lua"

// Method is a script-callable method taking no arguments.
type Method[T any] func(*T) any

// Class exposes a native struct type to scripts. Fields tagged `lua:"name"`
// are readable and writable from script; methods are declared explicitly.
// A Class is immutable once built and may be shared by every runtime start.
type Class[T any] struct {
	name      string
	module    string
	defaults  func() T
	fields    map[string]int
	methods   map[string]Method[T]
	stringer  func(*T) string
	onRelease func(*T)
	mapper    *gluamapper.Mapper
}

// ClassOption configures a Class.
type ClassOption[T any] func(*Class[T])

// WithModule sets the require name. Defaults to the lowercased class name.
func WithModule[T any](module string) ClassOption[T] {
	return func(c *Class[T]) {
		c.module = module
	}
}

// WithDefaults sets the value constructors start from.
func WithDefaults[T any](fn func() T) ClassOption[T] {
	return func(c *Class[T]) {
		c.defaults = fn
	}
}

// WithMethod adds a no-argument method callable as obj:name().
func WithMethod[T any](name string, fn Method[T]) ClassOption[T] {
	return func(c *Class[T]) {
		c.methods[name] = fn
	}
}

// WithStringer sets what tostring(obj) renders.
func WithStringer[T any](fn func(*T) string) ClassOption[T] {
	return func(c *Class[T]) {
		c.stringer = fn
	}
}

// WithReleaseHook runs fn once, when the last holder releases an object.
func WithReleaseHook[T any](fn func(*T)) ClassOption[T] {
	return func(c *Class[T]) {
		c.onRelease = fn
	}
}

// NewClass describes T for scripts. Panics if T is not a struct, since a
// class is declared once at init time.
func NewClass[T any](name string, opts ...ClassOption[T]) *Class[T] {
	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		panic(fmt.Sprintf("exchange.NewClass: %s is not a struct", typ))
	}

	c := &Class[T]{
		name:    name,
		module:  strings.ToLower(name),
		fields:  make(map[string]int),
		methods: make(map[string]Method[T]),
		mapper: gluamapper.NewMapper(gluamapper.Option{
			NameFunc: gluamapper.Id,
			TagName:  fieldTag,
		}),
	}
	c.defaults = func() T {
		var zero T
		return zero
	}

	for i := range typ.NumField() {
		f := typ.Field(i)
		tag := f.Tag.Get(fieldTag)
		if tag == "" || tag == "-" || !f.IsExported() {
			continue
		}
		c.fields[tag] = i
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements vm.Binding.
func (c *Class[T]) Name() string {
	return c.name
}

// Module returns the name scripts pass to require.
func (c *Class[T]) Module() string {
	return c.module
}

// Fields returns the script-visible field names, sorted.
func (c *Class[T]) Fields() []string {
	names := make([]string, 0, len(c.fields))
	for name := range c.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Wrap makes v shareable. The returned handle is the first native holder.
func (c *Class[T]) Wrap(v *T) *Ref[T] {
	r := &Ref[T]{ptr: v, cls: c}
	r.count.Store(1)
	return r
}

// New wraps a fresh value initialised from the class defaults.
func (c *Class[T]) New() *Ref[T] {
	v := c.defaults()
	return c.Wrap(&v)
}

// Preload implements vm.Binding: it installs the metatable and makes the
// constructor module requireable.
func (c *Class[T]) Preload(L *lua.LState) error {
	c.metatable(L)
	L.PreloadModule(c.module, c.loader)
	return nil
}

// Push hands a new script-side holder of r to the runtime. The holder is
// dropped when the script value is garbage collected.
func (c *Class[T]) Push(L *lua.LState, r *Ref[T]) lua.LValue {
	ud := L.NewUserData()
	ud.Value = r
	L.SetMetatable(ud, c.metatable(L))
	r.hold()
	runtime.SetFinalizer(ud, func(*lua.LUserData) {
		r.drop()
	})
	return ud
}

// PushSlice pushes refs as a Lua array, preserving order and identity.
func (c *Class[T]) PushSlice(L *lua.LState, refs []*Ref[T]) *lua.LTable {
	tbl := L.CreateTable(len(refs), 0)
	for _, r := range refs {
		tbl.Append(c.Push(L, r))
	}
	return tbl
}

// Pull returns a new native holder of the object behind v, if v is one of
// this class's objects.
func (c *Class[T]) Pull(v lua.LValue) (*Ref[T], bool) {
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return nil, false
	}
	r, ok := ud.Value.(*Ref[T])
	if !ok || r.cls != c {
		return nil, false
	}
	return r.Retain(), true
}

// PullSlice extracts each element of a Lua array by position. On failure
// every handle already taken is released again.
func (c *Class[T]) PullSlice(v lua.LValue) ([]*Ref[T], error) {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, oops.In("exchange").With("class", c.name).With("got", v.Type().String()).
			Errorf("expected a list of %s, got %s", c.name, v.Type())
	}

	n := tbl.Len()
	refs := make([]*Ref[T], 0, n)
	for i := 1; i <= n; i++ {
		r, ok := c.Pull(tbl.RawGetInt(i))
		if !ok {
			for _, taken := range refs {
				taken.Release()
			}
			elem := tbl.RawGetInt(i)
			return nil, oops.In("exchange").With("class", c.name).With("index", i).
				Errorf("element %d: expected %s, got %s", i, c.name, elem.Type())
		}
		refs = append(refs, r)
	}
	return refs, nil
}

func (c *Class[T]) metatable(L *lua.LState) *lua.LTable {
	if mt, ok := L.GetTypeMetatable(c.name).(*lua.LTable); ok {
		return mt
	}
	mt := L.NewTypeMetatable(c.name)
	L.SetFuncs(mt, map[string]lua.LGFunction{
		"__index":    c.index,
		"__newindex": c.newindex,
		"__tostring": c.tostring,
		"__eq":       c.eq,
	})
	return mt
}

func (c *Class[T]) loader(L *lua.LState) int {
	mod := L.NewTable()
	L.SetField(mod, "new", L.NewFunction(c.construct))
	L.SetField(mod, "name", lua.LString(c.name))

	fields := L.NewTable()
	for _, name := range c.Fields() {
		fields.Append(lua.LString(name))
	}
	L.SetField(mod, "fields", fields)

	// Record{...} is sugar for Record.new{...}.
	meta := L.NewTable()
	L.SetField(meta, "__call", L.NewFunction(func(L *lua.LState) int {
		L.Remove(1)
		return c.construct(L)
	}))
	L.SetMetatable(mod, meta)

	L.Push(mod)
	return 1
}

// construct builds an object from optional named arguments; omitted names keep
// their defaults.
func (c *Class[T]) construct(L *lua.LState) int {
	v := c.defaults()
	if args := L.OptTable(1, nil); args != nil {
		var unknown []string
		args.ForEach(func(k, _ lua.LValue) {
			if _, ok := c.fields[k.String()]; !ok {
				unknown = append(unknown, k.String())
			}
		})
		if len(unknown) > 0 {
			sort.Strings(unknown)
			L.ArgError(1, fmt.Sprintf("%s has no field(s) %s", c.name, strings.Join(unknown, ", ")))
			return 0
		}
		if err := c.mapper.Map(args, &v); err != nil {
			L.ArgError(1, err.Error())
			return 0
		}
	}

	r := c.Wrap(&v)
	L.Push(c.Push(L, r))
	r.Release() // the script now holds the only reference
	return 1
}

func (c *Class[T]) check(L *lua.LState, n int) *Ref[T] {
	ud := L.CheckUserData(n)
	r, ok := ud.Value.(*Ref[T])
	if !ok || r.cls != c {
		L.ArgError(n, c.name+" expected")
		return nil
	}
	return r
}

func (c *Class[T]) index(L *lua.LState) int {
	r := c.check(L, 1)
	key := L.CheckString(2)

	if m, ok := c.methods[key]; ok {
		L.Push(L.NewFunction(func(L *lua.LState) int {
			self := c.check(L, 1)
			L.Push(ToLua(L, m(self.Get())))
			return 1
		}))
		return 1
	}

	idx, ok := c.fields[key]
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	field := reflect.ValueOf(r.Get()).Elem().Field(idx)
	L.Push(ToLua(L, field.Interface()))
	return 1
}

func (c *Class[T]) newindex(L *lua.LState) int {
	r := c.check(L, 1)
	key := L.CheckString(2)
	value := L.CheckAny(3)

	if _, ok := c.fields[key]; !ok {
		L.RaiseError("%s has no field %q", c.name, key)
		return 0
	}

	update := L.NewTable()
	update.RawSetString(key, value)
	if err := c.mapper.Map(update, r.Get()); err != nil {
		L.RaiseError("cannot set %s.%s: %s", c.name, key, err.Error())
	}
	return 0
}

func (c *Class[T]) tostring(L *lua.LState) int {
	r := c.check(L, 1)
	if c.stringer != nil {
		L.Push(lua.LString(c.stringer(r.Get())))
		return 1
	}
	L.Push(lua.LString(fmt.Sprintf("%s: %p", c.name, r.Get())))
	return 1
}

func (c *Class[T]) eq(L *lua.LState) int {
	a := c.check(L, 1)
	b := c.check(L, 2)
	L.Push(lua.LBool(a.Same(b)))
	return 1
}

// ToLua converts a native value for scripts: reference objects are shared,
// script values pass through, everything else goes through gopher-luar.
func ToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case Object:
		return val.pushTo(L)
	default:
		return luar.New(L, v)
	}
}
