// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for call and load metrics.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// PluginCalls is the counter for script function calls.
// Use RegisterMetrics to register this with a Prometheus registry.
var PluginCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scripthost_plugin_calls_total",
		Help: "Total number of plugin function calls",
	},
	[]string{"plugin", "function", "status"},
)

// PluginCallDuration is the histogram for script function call duration,
// including the wait for the runtime guard.
var PluginCallDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "scripthost_plugin_call_duration_seconds",
		Help:    "Plugin function call duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"plugin", "function"},
)

// PluginLoads is the counter for plugin loads and reloads.
var PluginLoads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scripthost_plugin_loads_total",
		Help: "Total number of plugin loads",
	},
	[]string{"plugin", "status"},
)

// RegisterMetrics registers plugin package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(PluginCalls)
	reg.MustRegister(PluginCallDuration)
	reg.MustRegister(PluginLoads)
}

func recordCall(plugin, function, status string, duration time.Duration) {
	PluginCalls.WithLabelValues(plugin, function, status).Inc()
	PluginCallDuration.WithLabelValues(plugin, function).Observe(duration.Seconds())
}

func recordLoad(plugin, status string) {
	PluginLoads.WithLabelValues(plugin, status).Inc()
}
