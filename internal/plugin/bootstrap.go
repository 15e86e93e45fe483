// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"strings"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scripthost/internal/vm"
)

// Bootstrap populates a fresh namespace. It runs with the guard held and
// returns the first failure; the plugin turns a failure into StatusError.
type Bootstrap func(ctx context.Context, g *vm.Guard, ns *Namespace) error

// ScriptFile is the default bootstrap: it compiles the namespace's locator and
// runs the chunk inside the namespace so top-level definitions land there.
func ScriptFile() Bootstrap {
	return func(ctx context.Context, g *vm.Guard, ns *Namespace) error {
		fn, err := g.State().LoadFile(ns.Locator())
		if err != nil {
			return err
		}
		return runChunk(ctx, g, ns, fn)
	}
}

// ScriptSource runs code instead of reading the locator.
func ScriptSource(code string) Bootstrap {
	return func(ctx context.Context, g *vm.Guard, ns *Namespace) error {
		fn, err := g.State().Load(strings.NewReader(code), "<"+ns.Name()+">")
		if err != nil {
			return err
		}
		return runChunk(ctx, g, ns, fn)
	}
}

// Chain runs several bootstraps in order, stopping at the first failure.
func Chain(steps ...Bootstrap) Bootstrap {
	return func(ctx context.Context, g *vm.Guard, ns *Namespace) error {
		for i, step := range steps {
			if err := step(ctx, g, ns); err != nil {
				return oops.In("plugin").With("step", i).Wrap(err)
			}
		}
		return nil
	}
}

func runChunk(ctx context.Context, g *vm.Guard, ns *Namespace, fn *lua.LFunction) error {
	L := g.State()
	L.SetFEnv(fn, ns.Table())

	defer bindContext(L, ctx)()

	return L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	})
}

// bindContext makes ctx visible to host functions for the duration of a call
// and returns a func restoring whatever was bound before, so nested calls
// keep the outer context.
func bindContext(L *lua.LState, ctx context.Context) func() {
	prev := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	L.SetContext(ctx)
	return func() {
		if prev == nil {
			L.RemoveContext()
			return
		}
		L.SetContext(prev)
	}
}
