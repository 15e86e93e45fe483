// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

// Status is the lifecycle state of a plugin.
type Status int32

// Plugin states. A plugin in StatusError stays there until it is reloaded.
const (
	StatusUninit Status = iota
	StatusRunning
	StatusError
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusUninit:
		return "uninit"
	case StatusRunning:
		return "running"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
