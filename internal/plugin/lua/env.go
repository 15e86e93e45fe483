// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package lua holds the Lua-specific pieces of plugin hosting: namespace
// environments and the translation of script failures into diagnostics.
package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// loadedKey is where gopher-lua keeps package.loaded in the registry.
const loadedKey = "_LOADED"

// NewEnvironment creates an empty namespace table called name. Unresolved
// globals fall back to builtins; _G refers to the namespace itself so a script
// writing _G.x = 1 stays inside it.
func NewEnvironment(L *lua.LState, name string, builtins *lua.LTable) *lua.LTable {
	env := L.NewTable()
	env.RawSetString("_NAME", lua.LString(name))
	env.RawSetString("_G", env)

	mt := L.NewTable()
	if builtins != nil {
		mt.RawSetString("__index", builtins)
	}
	L.SetMetatable(env, mt)
	return env
}

// LoadedTable returns the shared package.loaded table, creating it when the
// package library was not opened.
func LoadedTable(L *lua.LState) *lua.LTable {
	registry, ok := L.Get(lua.RegistryIndex).(*lua.LTable)
	if !ok {
		return L.NewTable()
	}
	if loaded, ok := registry.RawGetString(loadedKey).(*lua.LTable); ok {
		return loaded
	}
	loaded := L.NewTable()
	registry.RawSetString(loadedKey, loaded)
	return loaded
}

// Publish registers tbl in package.loaded so require(name) returns it.
func Publish(L *lua.LState, name string, tbl *lua.LTable) {
	LoadedTable(L).RawSetString(name, tbl)
}

// Unpublish removes name from package.loaded if it still maps to tbl.
func Unpublish(L *lua.LState, name string, tbl *lua.LTable) {
	loaded := LoadedTable(L)
	if loaded.RawGetString(name) != tbl {
		return
	}
	loaded.RawSetString(name, lua.LNil)
}

// Clear removes every key and the metatable from tbl so values it held can be
// collected even if something still references the table.
func Clear(L *lua.LState, tbl *lua.LTable) {
	var keys []lua.LValue
	tbl.ForEach(func(k, _ lua.LValue) {
		keys = append(keys, k)
	})
	for _, k := range keys {
		tbl.RawSet(k, lua.LNil)
	}
	L.SetMetatable(tbl, lua.LNil)
}
