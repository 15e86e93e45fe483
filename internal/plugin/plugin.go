// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	pluginlua "github.com/holomush/scripthost/internal/plugin/lua"
	"github.com/holomush/scripthost/internal/vm"
)

var tracer = otel.Tracer("scripthost/plugin")

// HostFunctions seeds host-provided functions into a namespace.
type HostFunctions interface {
	Install(L *lua.LState, env *lua.LTable, plugin string)
}

// Plugin is one named script loaded into its own namespace of the shared runtime.
type Plugin struct {
	name         string
	locator      string
	manifest     *Manifest
	capabilities []string
	rt           *vm.Runtime
	bootstrap    Bootstrap
	host         HostFunctions
	reporter     Reporter
	logger       *slog.Logger

	status atomic.Int32
	// ns is only read or written with the runtime guard held.
	ns *Namespace
}

// Option configures a single plugin at registration.
type Option func(*Plugin)

// WithBootstrap replaces the bootstrap for this plugin only.
func WithBootstrap(b Bootstrap) Option {
	return func(p *Plugin) {
		p.bootstrap = b
	}
}

// WithSource runs code instead of reading the locator.
func WithSource(code string) Option {
	return WithBootstrap(ScriptSource(code))
}

// WithManifest attaches the manifest the plugin was discovered from.
func WithManifest(m *Manifest) Option {
	return func(p *Plugin) {
		p.manifest = m
		p.capabilities = append(p.capabilities, m.Capabilities...)
	}
}

// WithCapabilities grants capability patterns to the plugin's host functions.
func WithCapabilities(patterns ...string) Option {
	return func(p *Plugin) {
		p.capabilities = append(p.capabilities, patterns...)
	}
}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return p.name
}

// Locator returns the script path.
func (p *Plugin) Locator() string {
	return p.locator
}

// Manifest returns the manifest the plugin came from, or nil.
func (p *Plugin) Manifest() *Manifest {
	return p.manifest
}

// Status reports the lifecycle state. Safe to call without the guard.
func (p *Plugin) Status() Status {
	return Status(p.status.Load())
}

// Load creates a fresh namespace and runs the bootstrap. Loading a running
// plugin replaces its namespace and re-runs the script. Failures are reported,
// never returned. A plugin in StatusError is left as is; use Reload to retry.
func (p *Plugin) Load(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "plugin.load",
		trace.WithAttributes(attribute.String("plugin.name", p.name)))
	defer span.End()

	if err := p.load(ctx, true); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.fail(ctx, "", "", err)
	}
}

// Reload replaces the namespace with a fresh one and re-runs the bootstrap.
// It is the only way out of StatusError. The failure is reported and returned.
func (p *Plugin) Reload(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "plugin.reload",
		trace.WithAttributes(attribute.String("plugin.name", p.name)))
	defer span.End()

	if err := p.load(ctx, false); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.fail(ctx, "", "", err)
		return err
	}
	return nil
}

// load runs the bootstrap into a new namespace under the guard. The guard is
// released before it returns, so failures are reported by the caller without
// holding it. With skipFailed set, a plugin in StatusError is not touched.
func (p *Plugin) load(ctx context.Context, skipFailed bool) error {
	g, err := p.rt.Acquire()
	if err != nil {
		return oops.In("plugin").With("plugin", p.name).Wrap(err)
	}
	defer g.Release()

	if skipFailed && p.Status() == StatusError {
		recordLoad(p.name, ResultSkipped)
		return nil
	}

	ns := newNamespace(g, p.name, p.locator, p.host)

	p.rt.AddSearchPath(g, ".")
	if p.locator != "" {
		p.rt.AddSearchPath(g, filepath.Dir(p.locator))
	}

	if err := p.bootstrap(ctx, g, ns); err != nil {
		ns.release(g)
		if p.ns != nil {
			// The previous namespace stays attached; keep it requireable.
			p.ns.publish(g)
		}
		p.status.Store(int32(StatusError))
		recordLoad(p.name, ResultError)
		return oops.In("plugin").
			Code(CodeLoadFailure).
			With("plugin", p.name).
			With("locator", p.locator).
			Wrap(err)
	}

	if p.ns != nil {
		p.ns.release(g)
	}
	p.ns = ns
	p.status.Store(int32(StatusRunning))
	recordLoad(p.name, ResultSuccess)
	p.logger.DebugContext(ctx, "plugin loaded", "namespace", ns.Name())
	return nil
}

// Has reports whether the plugin is running and defines a callable symbol.
func (p *Plugin) Has(_ context.Context, symbol string) bool {
	if p.Status() != StatusRunning {
		return false
	}
	g, err := p.rt.Acquire()
	if err != nil {
		return false
	}
	defer g.Release()

	if p.ns == nil {
		return false
	}
	return p.ns.Lookup(g, symbol).Kind == Found
}

// SetGlobal binds key in the plugin's namespace. Only later lookups see it.
func (p *Plugin) SetGlobal(_ context.Context, key string, value any) error {
	g, err := p.rt.Acquire()
	if err != nil {
		return oops.In("plugin").With("plugin", p.name).With("key", key).Wrap(err)
	}
	defer g.Release()

	if p.ns == nil {
		return oops.In("plugin").
			Code(CodeLifecycleMisuse).
			With("plugin", p.name).
			With("key", key).
			Errorf("plugin %q has no namespace", p.name)
	}
	p.ns.Table().RawSetString(key, marshal(g.State(), value))
	return nil
}

// Namespace returns the plugin's namespace, or nil when it has none. The
// caller must hold g.
func (p *Plugin) Namespace(g *vm.Guard) *Namespace {
	_ = g.State()
	return p.ns
}

// release drops the namespace. The caller must hold g.
func (p *Plugin) release(g *vm.Guard) {
	if p.ns == nil {
		return
	}
	p.ns.release(g)
	p.ns = nil
}

// fail moves the plugin to StatusError and reports err.
func (p *Plugin) fail(ctx context.Context, function, callID string, err error) {
	p.status.Store(int32(StatusError))
	d := Diagnostic{
		Plugin:   p.name,
		Function: function,
		CallID:   callID,
		Kind:     KindOf(err),
		Message:  pluginlua.Translate(err),
		Err:      err,
	}
	p.logger.DebugContext(ctx, "plugin entered error state", "kind", d.Kind)
	p.reporter.Report(d)
}
