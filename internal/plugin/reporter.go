// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"log/slog"
	"sync"

	"github.com/holomush/scripthost/pkg/errutil"
)

// Diagnostic describes a script failure the host swallowed or returned.
type Diagnostic struct {
	Plugin   string
	Function string // empty for load failures
	CallID   string
	Kind     string
	// Message is the translated, human-readable form of Err.
	Message string
	Err     error
}

// Reporter receives diagnostics. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(d Diagnostic)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(d Diagnostic)

// Report implements Reporter.
func (f ReporterFunc) Report(d Diagnostic) {
	f(d)
}

// LogReporter writes diagnostics to a structured logger.
type LogReporter struct {
	Logger *slog.Logger
}

// Report implements Reporter.
func (r LogReporter) Report(d Diagnostic) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("plugin", d.Plugin, "kind", d.Kind)
	if d.Function != "" {
		logger = logger.With("function", d.Function)
	}
	if d.CallID != "" {
		logger = logger.With("call_id", d.CallID)
	}
	errutil.LogError(logger, "plugin failure\n"+d.Message, d.Err)
}

// RecordingReporter keeps every diagnostic in memory.
type RecordingReporter struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
}

// Report implements Reporter.
func (r *RecordingReporter) Report(d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, d)
}

// Diagnostics returns a copy of what has been reported so far.
func (r *RecordingReporter) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.diagnostics))
	copy(out, r.diagnostics)
	return out
}

// Reset forgets every recorded diagnostic.
func (r *RecordingReporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = nil
}

// multiReporter fans a diagnostic out to several reporters.
type multiReporter []Reporter

func (m multiReporter) Report(d Diagnostic) {
	for _, r := range m {
		r.Report(d)
	}
}
