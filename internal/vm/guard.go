// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package vm

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// Guard is exclusive access to the runtime for the duration of its scope.
// Obtain one with Acquire or Enter and always defer Release.
type Guard struct {
	rt       *Runtime
	held     atomic.Bool
	borrowed bool
}

// Acquire blocks until the caller holds the runtime. There is no timeout;
// callers that need a bounded wait must layer one on top.
func (r *Runtime) Acquire() (*Guard, error) {
	start := time.Now()
	r.lock.Lock()
	guardWait.Observe(time.Since(start).Seconds())

	if !r.Running() {
		r.lock.Unlock()
		return nil, oops.In("vm").Code(CodeLifecycleMisuse).Errorf("runtime is not running")
	}

	g := &Guard{rt: r}
	g.held.Store(true)
	return g, nil
}

// Enter reuses outer when it is a guard this goroutine already holds on r,
// otherwise it acquires a fresh one. Releasing a reused guard is a no-op, so
// nested runtime work inside one logical operation cannot deadlock.
func (r *Runtime) Enter(outer *Guard) (*Guard, error) {
	if outer != nil && outer.rt == r && outer.Held() {
		g := &Guard{rt: r, borrowed: true}
		g.held.Store(true)
		return g, nil
	}
	return r.Acquire()
}

// Do runs fn while holding the guard. The guard is released on every exit
// path, including a panic unwinding through fn.
func (r *Runtime) Do(fn func(g *Guard) error) error {
	g, err := r.Acquire()
	if err != nil {
		return err
	}
	defer g.Release()
	return fn(g)
}

// Release gives up the guard. Calling it more than once is harmless.
func (g *Guard) Release() {
	if g == nil || !g.held.CompareAndSwap(true, false) {
		return
	}
	if g.borrowed {
		return
	}
	g.rt.lock.Unlock()
}

// Held reports whether the guard is still in scope.
func (g *Guard) Held() bool {
	return g != nil && g.held.Load()
}

// State returns the runtime's Lua state. It is only valid while the guard is held.
func (g *Guard) State() *lua.LState {
	g.mustHold(g.rt)
	return g.rt.main
}

// Runtime returns the runtime this guard belongs to.
func (g *Guard) Runtime() *Runtime {
	return g.rt
}

// mustHold panics when runtime state is touched without the guard; that is a
// programming error, not a recoverable condition.
func (g *Guard) mustHold(r *Runtime) {
	if !g.Held() || g.rt != r {
		panic(fmt.Sprintf("vm: runtime touched without holding its guard (held=%t)", g.Held()))
	}
}
