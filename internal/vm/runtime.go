// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package vm owns the process-wide embedded Lua runtime and the guard that
// serializes every touch of it.
//
// Lifecycle contract: bindings are registered before Init, every plugin
// namespace is released before Finalize, and nothing touches the runtime after
// Finalize. Init and Finalize are both idempotent.
package vm

import (
	"log/slog"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cjoudrey/gluaurl"
	"github.com/samber/oops"
	"github.com/yuin/gluare"
	lua "github.com/yuin/gopher-lua"
	luajson "layeh.com/gopher-json"
)

// State is the lifecycle state of the runtime.
type State int32

// Runtime lifecycle states.
const (
	StateUninitialized State = iota
	StateRunning
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// CodeLifecycleMisuse marks operations attempted outside the runtime's valid lifecycle.
const CodeLifecycleMisuse = "LIFECYCLE_MISUSE"

// Binding exposes a native type to scripts through the runtime's module table.
// Preload is called exactly once per Init, while the caller holds the runtime.
type Binding interface {
	Name() string
	Preload(L *lua.LState) error
}

// library is a standard Lua library opened into the runtime.
type library struct {
	name string
	fn   lua.LGFunction
}

// defaultLibraries is the standard environment every namespace can see.
// io, os and debug are opt-in through WithLibraries.
func defaultLibraries() []library {
	return []library{
		{lua.BaseLibName, lua.OpenBase},
		{lua.LoadLibName, lua.OpenPackage},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	}
}

// optionalLibraries maps names accepted by WithLibraries to their openers.
var optionalLibraries = map[string]lua.LGFunction{
	lua.IoLibName:      lua.OpenIo,
	lua.OsLibName:      lua.OpenOs,
	lua.DebugLibName:   lua.OpenDebug,
	lua.ChannelLibName: lua.OpenChannel,
}

// bundledModules are preloaded so scripts can require them by name.
var bundledModules = map[string]lua.LGFunction{
	"json": luajson.Loader,
	"re":   gluare.Loader,
	"url":  gluaurl.Loader,
}

// Runtime is the single embedded Lua runtime of the process.
type Runtime struct {
	// lock is the global guard. While the runtime is parked nobody holds it.
	lock sync.Mutex
	// life serializes Init, Finalize and binding registration.
	life sync.Mutex

	state    atomic.Int32
	main     *lua.LState
	builtins *lua.LTable

	libraries []library
	bindings  []Binding
	paths     map[string]struct{}
}

var (
	sharedOnce sync.Once
	shared     *Runtime
)

// Shared returns the process-wide runtime. It is the only way to obtain one,
// which keeps the number of live runtimes at one.
func Shared() *Runtime {
	sharedOnce.Do(func() {
		shared = newRuntime()
	})
	return shared
}

func newRuntime() *Runtime {
	return &Runtime{
		libraries: defaultLibraries(),
		paths:     make(map[string]struct{}),
	}
}

// State reports the current lifecycle state without taking the guard.
func (r *Runtime) State() State {
	return State(r.state.Load())
}

// Running reports whether Init has completed and Finalize has not.
func (r *Runtime) Running() bool {
	return r.State() == StateRunning
}

// WithLibraries opens extra standard libraries (io, os, debug, channel) on the next Init.
// Like bindings, it must be called before the runtime starts.
func (r *Runtime) WithLibraries(names ...string) error {
	r.life.Lock()
	defer r.life.Unlock()

	if r.Running() {
		return oops.In("vm").Code(CodeLifecycleMisuse).With("libraries", names).
			Errorf("libraries must be configured before the runtime starts")
	}

	for _, name := range names {
		fn, ok := optionalLibraries[name]
		if !ok {
			return oops.In("vm").With("library", name).Errorf("unknown library %q", name)
		}
		if r.hasLibrary(name) {
			continue
		}
		r.libraries = append(r.libraries, library{name: name, fn: fn})
	}
	return nil
}

func (r *Runtime) hasLibrary(name string) bool {
	for _, lib := range r.libraries {
		if lib.name == name {
			return true
		}
	}
	return false
}

// RegisterBinding adds a native type to the module table. Registering after
// the runtime has started is not supported.
func (r *Runtime) RegisterBinding(b Binding) error {
	r.life.Lock()
	defer r.life.Unlock()

	if r.Running() {
		return oops.In("vm").Code(CodeLifecycleMisuse).With("binding", b.Name()).
			Errorf("binding %q registered after the runtime started", b.Name())
	}
	for _, existing := range r.bindings {
		if existing.Name() == b.Name() {
			return oops.In("vm").With("binding", b.Name()).Errorf("binding %q already registered", b.Name())
		}
	}
	r.bindings = append(r.bindings, b)
	return nil
}

// HasBinding reports whether a binding with this name is registered.
func (r *Runtime) HasBinding(name string) bool {
	r.life.Lock()
	defer r.life.Unlock()

	for _, b := range r.bindings {
		if b.Name() == name {
			return true
		}
	}
	return false
}

// Init starts the runtime if it is not running yet, then parks it so any
// goroutine can acquire the guard. Library or binding failures are logged and
// the offending module is skipped; the runtime still starts.
func (r *Runtime) Init() {
	r.life.Lock()
	defer r.life.Unlock()

	if r.Running() {
		return
	}

	r.lock.Lock()
	defer r.lock.Unlock() // parks the main context

	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, lib := range r.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			slog.Error("failed to open library", "library", lib.name, "error", err)
		}
	}

	for name, loader := range bundledModules {
		L.PreloadModule(name, loader)
	}

	for _, b := range r.bindings {
		if err := b.Preload(L); err != nil {
			slog.Error("failed to preload binding", "binding", b.Name(), "error", err)
		}
	}

	r.builtins = snapshotGlobals(L)
	r.main = L
	r.paths = make(map[string]struct{})
	r.state.Store(int32(StateRunning))

	slog.Debug("runtime started",
		"libraries", len(r.libraries),
		"bindings", len(r.bindings))
}

// snapshotGlobals copies the globals table so namespaces fall back to the
// builtins as they were at start, not to whatever a plugin later assigns.
func snapshotGlobals(L *lua.LState) *lua.LTable {
	globals := L.Get(lua.GlobalsIndex).(*lua.LTable)
	snapshot := L.NewTable()
	globals.ForEach(func(k, v lua.LValue) {
		snapshot.RawSet(k, v)
	})
	snapshot.RawSetString("_G", snapshot)
	return snapshot
}

// Finalize reacquires the parked context, runs two full collections so
// finalizers that re-create references get a second chance, and closes the
// runtime. Every namespace must have been released before this call.
func (r *Runtime) Finalize() {
	r.life.Lock()
	defer r.life.Unlock()

	if !r.Running() {
		return
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.state.Store(int32(StateUninitialized))

	goruntime.GC()
	goruntime.GC()

	r.main.Close()
	r.main = nil
	r.builtins = nil
	r.paths = make(map[string]struct{})

	slog.Debug("runtime finalized")
}

// Builtins returns the standard environment namespaces inherit from.
func (r *Runtime) Builtins(g *Guard) *lua.LTable {
	g.mustHold(r)
	return r.builtins
}

// AddSearchPath prepends dir to package.path the first time it is seen during
// this runtime's lifetime. Reports whether the path was inserted.
func (r *Runtime) AddSearchPath(g *Guard, dir string) bool {
	g.mustHold(r)

	dir = filepath.Clean(dir)
	if _, seen := r.paths[dir]; seen {
		return false
	}
	r.paths[dir] = struct{}{}

	pkg, ok := r.main.GetGlobal(lua.LoadLibName).(*lua.LTable)
	if !ok {
		return false
	}
	entry := filepath.ToSlash(filepath.Join(dir, "?.lua")) + ";" +
		filepath.ToSlash(filepath.Join(dir, "?", "init.lua")) + ";"
	current := lua.LVAsString(pkg.RawGetString("path"))
	if !strings.HasPrefix(current, entry) {
		pkg.RawSetString("path", lua.LString(entry+current))
	}
	return true
}
