// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/scripthost/internal/config"
	"github.com/holomush/scripthost/internal/exchange"
	"github.com/holomush/scripthost/internal/plugin"
	"github.com/holomush/scripthost/internal/plugin/capability"
	"github.com/holomush/scripthost/internal/plugin/hostfunc"
	"github.com/holomush/scripthost/internal/store"
	"github.com/holomush/scripthost/internal/vm"
)

// setDefaultLogger is swapped in tests.
var setDefaultLogger = slog.SetDefault

// host is a plugin registry wired to a KV store, ready for calls.
type host struct {
	registry *plugin.Registry
	recorder *plugin.RecordingReporter
	closeKV  func()
}

// pluginSpec is a name=script pair from the command line.
type pluginSpec struct {
	Name   string
	Script string
}

// parsePluginSpec accepts name=path, or a bare path named after its file.
func parsePluginSpec(s string) (pluginSpec, error) {
	name, script, found := strings.Cut(s, "=")
	if !found {
		script = s
		name = strings.TrimSuffix(filepath.Base(s), filepath.Ext(s))
	}
	if name == "" || script == "" {
		return pluginSpec{}, oops.Code("INVALID_PLUGIN_FLAG").With("value", s).
			Errorf("plugin must be name=path or path, got %q", s)
	}
	return pluginSpec{Name: name, Script: script}, nil
}

// newHost opens the configured KV store, configures the shared runtime and
// registers every configured plugin plus extra. Load failures are reported,
// not returned.
func newHost(ctx context.Context, cfg *config.Config, extra []pluginSpec, reporters ...plugin.Reporter) (*host, error) {
	logger := slog.Default()

	var (
		kv      hostfunc.KVStore
		closeKV = func() {}
	)
	if cfg.KV.DatabaseURL != "" {
		pg, err := store.NewPostgresKV(ctx, cfg.KV.DatabaseURL, store.DefaultConnectOptions)
		if err != nil {
			return nil, err
		}
		kv, closeKV = pg, pg.Close
	} else {
		kv = store.NewMemoryKV()
	}

	rt := vm.Shared()
	if !rt.Running() {
		if err := rt.WithLibraries(cfg.Runtime.Libraries...); err != nil {
			closeKV()
			return nil, err
		}
	}

	enforcer := capability.NewEnforcer()
	recorder := &plugin.RecordingReporter{}
	opts := []plugin.RegistryOption{
		plugin.WithLogger(logger),
		plugin.WithEnforcer(enforcer),
		plugin.WithHostFunctions(hostfunc.New(kv, enforcer, hostfunc.WithLogger(logger))),
		plugin.WithBindings(exchange.RecordClass),
		plugin.WithReporter(plugin.LogReporter{Logger: logger}),
		plugin.WithReporter(recorder),
	}
	for _, rep := range reporters {
		opts = append(opts, plugin.WithReporter(rep))
	}
	registry, err := plugin.NewRegistry(opts...)
	if err != nil {
		closeKV()
		return nil, err
	}

	h := &host{registry: registry, recorder: recorder, closeKV: closeKV}

	if cfg.Plugins.Dir != "" {
		if _, err := registry.LoadDir(ctx, cfg.Plugins.Dir); err != nil {
			h.close(ctx)
			return nil, err
		}
	}
	for _, e := range cfg.Plugins.Entries {
		registry.Register(ctx, e.Name, e.Script, plugin.WithCapabilities(e.Capabilities...))
	}
	for _, s := range extra {
		registry.Register(ctx, s.Name, s.Script)
	}
	return h, nil
}

// close releases every plugin, finalizes the runtime and closes the store.
func (h *host) close(ctx context.Context) {
	if err := h.registry.Close(ctx); err != nil {
		slog.WarnContext(ctx, "error closing plugin registry", "error", err)
	}
	h.closeKV()
}
