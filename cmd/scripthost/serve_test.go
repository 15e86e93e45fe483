// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_RunsLifecycleHooks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "greeter/plugin.yaml", "name: greeter\nversion: 1.0.0\nentry: main.lua\n")
	writeFile(t, root, "greeter/main.lua", `
		function on_start() host.log("info", "greeter started") end
		function on_stop() host.log("info", "greeter stopped") end
	`)
	writeFile(t, root, "quiet/plugin.yaml", "name: quiet\nversion: 1.0.0\nentry: main.lua\n")
	writeFile(t, root, "quiet/main.lua", `x = 1`)
	writeFile(t, root, "broken/plugin.yaml", "name: broken\nversion: 1.0.0\nentry: main.lua\n")
	writeFile(t, root, "broken/main.lua", `error("no good")`)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, stderr, err := execute(t, ctx,
		"--plugins-dir", root, "--metrics-addr", "127.0.0.1:0", "--log-format", "text",
		"serve")
	require.NoError(t, err)

	started := strings.Index(stderr, "greeter started")
	stopped := strings.Index(stderr, "greeter stopped")
	require.GreaterOrEqual(t, started, 0, stderr)
	require.GreaterOrEqual(t, stopped, 0, stderr)
	assert.Less(t, started, stopped)

	assert.Contains(t, stderr, "scripthost serving")
	assert.Contains(t, stderr, "plugins=3")
	assert.Contains(t, stderr, "failed=1")
	assert.Contains(t, stderr, "shutdown complete")
}

func TestServe_WithoutMetrics(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, stderr, err := execute(t, ctx, "--metrics-addr", "", "--log-format", "text", "serve")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "observability server started")
	assert.Contains(t, stderr, "plugins=0")
}
