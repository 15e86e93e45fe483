// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package hostfunc provides host functions to Lua plugins.
//
// Host functions expose host capabilities to plugins in a controlled way.
// Functions that access sensitive resources require capability checks.
package hostfunc

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scripthost/internal/plugin/capability"
)

// TableName is the global name of the host function table in every namespace.
const TableName = "host"

// Capabilities checked by host functions.
const (
	CapKVRead  = "kv.read"
	CapKVWrite = "kv.write"
)

// defaultKVTimeout bounds a single storage call made from a script.
const defaultKVTimeout = 5 * time.Second

// KVStore provides namespaced key-value storage.
type KVStore interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
}

// Functions provides host functions to Lua plugins.
type Functions struct {
	kvStore  KVStore
	enforcer *capability.Enforcer
	logger   *slog.Logger
}

// Option configures Functions.
type Option func(*Functions)

// WithLogger sets the logger host.log writes to. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Functions) {
		f.logger = l
	}
}

// New creates host functions. kv may be nil, in which case the kv_* functions
// report that storage is unavailable. Panics if enforcer is nil.
func New(kv KVStore, enforcer *capability.Enforcer, opts ...Option) *Functions {
	if enforcer == nil {
		panic("hostfunc.New: enforcer cannot be nil")
	}
	f := &Functions{
		kvStore:  kv,
		enforcer: enforcer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Install seeds the host table into a plugin namespace.
func (f *Functions) Install(L *lua.LState, env *lua.LTable, pluginName string) {
	env.RawSetString(TableName, f.table(L, pluginName))
}

func (f *Functions) table(L *lua.LState, pluginName string) *lua.LTable {
	mod := L.NewTable()

	// Logging and ids need no capability.
	L.SetField(mod, "log", L.NewFunction(f.logFn(pluginName)))
	L.SetField(mod, "new_id", L.NewFunction(f.newIDFn()))

	L.SetField(mod, "kv_get", L.NewFunction(f.wrap(pluginName, CapKVRead, f.kvGetFn(pluginName))))
	L.SetField(mod, "kv_set", L.NewFunction(f.wrap(pluginName, CapKVWrite, f.kvSetFn(pluginName))))
	L.SetField(mod, "kv_delete", L.NewFunction(f.wrap(pluginName, CapKVWrite, f.kvDeleteFn(pluginName))))
	return mod
}

func (f *Functions) wrap(plugin, capName string, fn lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		if !f.enforcer.Check(plugin, capName) {
			L.RaiseError("capability denied: %s requires %s", plugin, capName)
			return 0
		}
		return fn(L)
	}
}

func (f *Functions) logFn(pluginName string) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		var lvl slog.Level
		switch level {
		case "debug":
			lvl = slog.LevelDebug
		case "info":
			lvl = slog.LevelInfo
		case "warn":
			lvl = slog.LevelWarn
		case "error":
			lvl = slog.LevelError
		default:
			L.ArgError(1, "log level must be one of debug, info, warn, error; got "+level)
			return 0
		}
		f.logger.Log(callContext(L), lvl, message, "plugin", pluginName)
		return 0
	}
}

func (f *Functions) newIDFn() lua.LGFunction {
	return func(L *lua.LState) int {
		L.Push(lua.LString(ulid.Make().String()))
		return 1
	}
}

func (f *Functions) kvGetFn(pluginName string) lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)
		if f.kvStore == nil {
			return pushError(L, errKVUnavailable)
		}

		ctx, cancel := context.WithTimeout(callContext(L), defaultKVTimeout)
		defer cancel()

		value, err := f.kvStore.Get(ctx, pluginName, key)
		if err != nil {
			f.logger.Debug("kv_get failed", "plugin", pluginName, "key", key, "error", err)
			return pushError(L, err.Error())
		}
		if value == nil {
			return pushSuccess(L, lua.LNil)
		}
		return pushSuccess(L, lua.LString(string(value)))
	}
}

func (f *Functions) kvSetFn(pluginName string) lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)
		value := L.CheckString(2)
		if f.kvStore == nil {
			return pushFailure(L, errKVUnavailable)
		}

		ctx, cancel := context.WithTimeout(callContext(L), defaultKVTimeout)
		defer cancel()

		if err := f.kvStore.Set(ctx, pluginName, key, []byte(value)); err != nil {
			return pushFailure(L, err.Error())
		}
		return 0
	}
}

func (f *Functions) kvDeleteFn(pluginName string) lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)
		if f.kvStore == nil {
			return pushFailure(L, errKVUnavailable)
		}

		ctx, cancel := context.WithTimeout(callContext(L), defaultKVTimeout)
		defer cancel()

		if err := f.kvStore.Delete(ctx, pluginName, key); err != nil {
			return pushFailure(L, err.Error())
		}
		return 0
	}
}
