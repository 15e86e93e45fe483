// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	lua "github.com/yuin/gopher-lua"

	pluginlua "github.com/holomush/scripthost/internal/plugin/lua"
	"github.com/holomush/scripthost/internal/vm"
)

// namespacePrefix is prepended to a plugin name to form its namespace name.
const namespacePrefix = "plugin_"

// Namespace is the isolated global table a plugin's script runs in.
// Every method requires the runtime guard.
type Namespace struct {
	name    string
	locator string
	table   *lua.LTable
}

// NamespaceName returns the namespace name for a plugin.
func NamespaceName(plugin string) string {
	return namespacePrefix + plugin
}

// newNamespace creates the table, seeds it from the builtins and publishes it
// in package.loaded.
func newNamespace(g *vm.Guard, plugin, locator string, host HostFunctions) *Namespace {
	L := g.State()
	name := NamespaceName(plugin)
	table := pluginlua.NewEnvironment(L, name, g.Runtime().Builtins(g))
	if host != nil {
		host.Install(L, table, plugin)
	}
	pluginlua.Publish(L, name, table)
	return &Namespace{name: name, locator: locator, table: table}
}

// Name returns the namespace name, plugin_<plugin>.
func (n *Namespace) Name() string {
	return n.name
}

// Locator returns the script the namespace is loaded from.
func (n *Namespace) Locator() string {
	return n.locator
}

// Table returns the namespace's global table.
func (n *Namespace) Table() *lua.LTable {
	return n.table
}

// ResolutionKind classifies the outcome of a symbol lookup.
type ResolutionKind int

// Lookup outcomes.
const (
	Found ResolutionKind = iota
	NotFound
	NotCallable
)

func (k ResolutionKind) String() string {
	switch k {
	case Found:
		return "found"
	case NotFound:
		return "not found"
	case NotCallable:
		return "not callable"
	default:
		return "unknown"
	}
}

// Resolution is the result of looking a symbol up in a namespace.
type Resolution struct {
	Kind  ResolutionKind
	Fn    *lua.LFunction // set when Kind is Found
	Value lua.LValue     // the raw value, LNil when not found
}

// Lookup resolves symbol with an exact raw lookup. Builtins reached through
// the namespace's fallback are not call targets.
func (n *Namespace) Lookup(g *vm.Guard, symbol string) Resolution {
	_ = g.State() // asserts the guard is held

	v := n.table.RawGetString(symbol)
	switch fn := v.(type) {
	case *lua.LNilType:
		return Resolution{Kind: NotFound, Value: lua.LNil}
	case *lua.LFunction:
		return Resolution{Kind: Found, Fn: fn, Value: fn}
	default:
		return Resolution{Kind: NotCallable, Value: v}
	}
}

// publish registers the namespace in package.loaded under its name.
func (n *Namespace) publish(g *vm.Guard) {
	pluginlua.Publish(g.State(), n.name, n.table)
}

// release clears the namespace and removes it from package.loaded unless a
// newer namespace has taken its name.
func (n *Namespace) release(g *vm.Guard) {
	L := g.State()
	pluginlua.Unpublish(L, n.name, n.table)
	pluginlua.Clear(L, n.table)
}
