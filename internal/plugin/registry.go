// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/scripthost/internal/plugin/capability"
	"github.com/holomush/scripthost/internal/vm"
)

// Registry owns every plugin of the process and the runtime's lifetime:
// the first Register starts the runtime and Close finalizes it.
type Registry struct {
	rt        *vm.Runtime
	bootstrap Bootstrap
	host      HostFunctions
	reporter  Reporter
	enforcer  *capability.Enforcer
	logger    *slog.Logger

	// ops serializes Register, Remove and Close.
	ops     sync.Mutex
	mu      sync.RWMutex
	plugins map[string]*Plugin
}

// RegistryOption configures the Registry.
type RegistryOption func(*Registry) error

// WithDefaultBootstrap replaces the bootstrap used for every plugin that does
// not set its own.
func WithDefaultBootstrap(b Bootstrap) RegistryOption {
	return func(r *Registry) error {
		r.bootstrap = b
		return nil
	}
}

// WithHostFunctions seeds fns into every namespace.
func WithHostFunctions(fns HostFunctions) RegistryOption {
	return func(r *Registry) error {
		r.host = fns
		return nil
	}
}

// WithReporter adds a diagnostic reporter. Repeated use reports to all of them.
func WithReporter(rep Reporter) RegistryOption {
	return func(r *Registry) error {
		switch existing := r.reporter.(type) {
		case nil:
			r.reporter = rep
		case multiReporter:
			r.reporter = append(existing, rep)
		default:
			r.reporter = multiReporter{existing, rep}
		}
		return nil
	}
}

// WithEnforcer receives the capability grants of manifest-discovered plugins.
func WithEnforcer(e *capability.Enforcer) RegistryOption {
	return func(r *Registry) error {
		r.enforcer = e
		return nil
	}
}

// WithLogger sets the logger plugins log through.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) error {
		r.logger = l
		return nil
	}
}

// WithBindings registers native types with the runtime. Bindings the runtime
// already knows are skipped, so registries created one after another can pass
// the same bindings.
func WithBindings(bindings ...vm.Binding) RegistryOption {
	return func(r *Registry) error {
		for _, b := range bindings {
			if r.rt.HasBinding(b.Name()) {
				continue
			}
			if err := r.rt.RegisterBinding(b); err != nil {
				return err
			}
		}
		return nil
	}
}

// NewRegistry creates a registry over the process-wide runtime.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		rt:        vm.Shared(),
		bootstrap: ScriptFile(),
		logger:    slog.Default(),
		plugins:   make(map[string]*Plugin),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, oops.In("plugin").Wrapf(err, "configure registry")
		}
	}
	if r.reporter == nil {
		r.reporter = LogReporter{Logger: r.logger}
	}
	return r, nil
}

// Runtime returns the runtime the registry manages.
func (r *Registry) Runtime() *vm.Runtime {
	return r.rt
}

// Register loads the script at locator as plugin name and returns it, whether
// or not the load succeeded; check Status. A plugin already registered under
// name is released first and the new one starts from StatusUninit.
func (r *Registry) Register(ctx context.Context, name, locator string, opts ...Option) *Plugin {
	r.ops.Lock()
	defer r.ops.Unlock()

	r.rt.Init()

	r.mu.RLock()
	prior := r.plugins[name]
	r.mu.RUnlock()
	if prior != nil {
		r.releasePlugin(prior)
	}

	p := &Plugin{
		name:      name,
		locator:   locator,
		rt:        r.rt,
		bootstrap: r.bootstrap,
		host:      r.host,
		reporter:  r.reporter,
		logger:    r.logger.With("plugin", name),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := r.grant(p); err != nil {
		p.fail(ctx, "", "", err)
		recordLoad(name, ResultError)
	} else {
		p.Load(ctx)
	}

	r.mu.Lock()
	r.plugins[name] = p
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "registered plugin",
		"plugin", name,
		"locator", locator,
		"status", p.Status().String())
	return p
}

// Get returns the plugin registered as name.
func (r *Registry) Get(name string) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[name]
	if !ok {
		return nil, oops.In("plugin").Code(CodeNotFound).With("plugin", name).
			Errorf("plugin %q is not registered", name)
	}
	return p, nil
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove releases the plugin registered as name and forgets it.
func (r *Registry) Remove(_ context.Context, name string) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	r.mu.Lock()
	p, ok := r.plugins[name]
	delete(r.plugins, name)
	r.mu.Unlock()
	if !ok {
		return oops.In("plugin").Code(CodeNotFound).With("plugin", name).
			Errorf("plugin %q is not registered", name)
	}

	r.releasePlugin(p)
	return nil
}

// Close releases every plugin and then finalizes the runtime. Namespaces
// must go first: finalizing closes the state they live in. Close is
// idempotent.
func (r *Registry) Close(ctx context.Context) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	r.mu.Lock()
	plugins := r.plugins
	r.plugins = make(map[string]*Plugin)
	r.mu.Unlock()

	if len(plugins) > 0 && r.rt.Running() {
		g, err := r.rt.Acquire()
		if err != nil {
			return oops.In("plugin").Wrapf(err, "release plugins")
		}
		for name, p := range plugins {
			p.release(g)
			if r.enforcer != nil {
				r.enforcer.RemoveGrants(name)
			}
		}
		g.Release()
	}

	r.rt.Finalize()
	r.logger.DebugContext(ctx, "plugin registry closed", "released", len(plugins))
	return nil
}

// Broadcast calls function on every running plugin that defines it, in name
// order. Failures are reported per plugin.
func (r *Registry) Broadcast(ctx context.Context, function string, args ...any) {
	for _, name := range r.Names() {
		p, err := r.Get(name)
		if err != nil {
			continue
		}
		if p.Has(ctx, function) {
			p.CallVoid(ctx, function, args...)
		}
	}
}

// grant hands the plugin's capabilities to the enforcer.
func (r *Registry) grant(p *Plugin) error {
	if r.enforcer == nil || len(p.capabilities) == 0 {
		return nil
	}
	return oops.In("plugin").
		Code(CodeLoadFailure).
		With("plugin", p.name).
		Wrap(r.enforcer.SetGrants(p.name, p.capabilities))
}

func (r *Registry) releasePlugin(p *Plugin) {
	if r.enforcer != nil {
		r.enforcer.RemoveGrants(p.name)
	}
	if !r.rt.Running() {
		return
	}
	g, err := r.rt.Acquire()
	if err != nil {
		return
	}
	defer g.Release()
	p.release(g)
}

// Discovered is a plugin directory with a valid manifest.
type Discovered struct {
	Manifest *Manifest
	Dir      string
}

// Discover finds every subdirectory of dir holding a valid plugin.yaml.
// Invalid plugins are logged and skipped; a missing dir yields nothing.
func Discover(ctx context.Context, dir string) ([]*Discovered, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, oops.In("plugin").With("dir", dir).Wrapf(err, "read plugins directory")
	}

	var found []*Discovered
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(filepath.Join(pluginDir, ManifestFile)) //nolint:gosec // path built from ReadDir entries
		if err != nil {
			slog.WarnContext(ctx, "skipping plugin without manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		manifest, err := ParseManifest(data)
		if err != nil {
			slog.WarnContext(ctx, "skipping plugin with invalid manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		found = append(found, &Discovered{Manifest: manifest, Dir: pluginDir})
	}
	return found, nil
}

// LoadDir discovers the plugins under dir and registers them with the
// capabilities their manifests declare. Plugins that fail to load are still registered, in
// StatusError, as with Register.
func (r *Registry) LoadDir(ctx context.Context, dir string) ([]*Plugin, error) {
	discovered, err := Discover(ctx, dir)
	if err != nil {
		return nil, err
	}

	loaded := make([]*Plugin, 0, len(discovered))
	for _, d := range discovered {
		p := r.Register(ctx, d.Manifest.Name, d.Manifest.EntryPath(d.Dir), WithManifest(d.Manifest))
		loaded = append(loaded, p)
	}
	return loaded, nil
}
