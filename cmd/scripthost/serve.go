// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/scripthost/internal/observability"
	"github.com/holomush/scripthost/internal/plugin"
	"github.com/holomush/scripthost/internal/vm"
)

// Lifecycle hooks broadcast by serve.
const (
	hookStart = "on_start"
	hookStop  = "on_stop"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run plugins until interrupted",
		Long: `Load the configured plugins, call on_start on every plugin that
defines it, and serve metrics and health probes until SIGINT or SIGTERM.
On shutdown on_stop is called the same way before the runtime is
finalized.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, app)
		},
	}
}

// serve blocks until ctx is done or the observability server fails.
func serve(ctx context.Context, app *cli) error {
	var ready atomic.Bool

	var (
		obs    *observability.Server
		obsErr <-chan error
	)
	if app.cfg.Metrics.Addr != "" {
		obs = observability.NewServer(app.cfg.Metrics.Addr, ready.Load,
			vm.RegisterMetrics,
			plugin.RegisterMetrics,
		)
		obs.Metrics().BuildInfo.WithLabelValues(version).Set(1)
		errCh, err := obs.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", app.cfg.Metrics.Addr).Wrap(err)
		}
		obsErr = errCh
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := obs.Stop(shutdownCtx); err != nil {
				slog.Warn("error stopping observability server", "error", err)
			}
		}()
	}

	countDiagnostics := plugin.ReporterFunc(func(d plugin.Diagnostic) {
		observability.RecordDiagnostic(d.Kind)
	})
	h, err := newHost(ctx, app.cfg, nil, countDiagnostics)
	if err != nil {
		return err
	}

	names := h.registry.Names()
	if obs != nil {
		obs.Metrics().PluginsLoaded.Set(float64(len(names)))
		obs.Metrics().HookBroadcasts.WithLabelValues(hookStart).Inc()
	}
	h.registry.Broadcast(ctx, hookStart)
	ready.Store(true)
	slog.InfoContext(ctx, "scripthost serving",
		"plugins", len(names),
		"failed", len(h.recorder.Diagnostics()))

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err, ok := <-obsErr:
		if ok && err != nil {
			serveErr = oops.Code("OBSERVABILITY_FAILED").Wrap(err)
		}
	}

	ready.Store(false)
	// ctx is done by now; hooks get a fresh one.
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if obs != nil {
		obs.Metrics().HookBroadcasts.WithLabelValues(hookStop).Inc()
	}
	h.registry.Broadcast(stopCtx, hookStop)
	h.close(stopCtx)

	slog.Info("shutdown complete")
	return serveErr
}
