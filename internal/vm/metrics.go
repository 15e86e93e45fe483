// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package vm

import "github.com/prometheus/client_golang/prometheus"

// guardWait measures how long callers block before holding the runtime.
var guardWait = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "scripthost_runtime_guard_wait_seconds",
		Help:    "Time spent waiting to acquire the runtime guard",
		Buckets: []float64{.00001, .0001, .001, .01, .1, 1, 10},
	},
)

// RegisterMetrics registers runtime metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(guardWait)
}
