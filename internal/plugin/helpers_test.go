// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holomush/scripthost/internal/exchange"
	"github.com/holomush/scripthost/internal/plugin"
)

// newRegistry returns a registry over the shared runtime that records
// diagnostics instead of logging them. It is closed when the test ends, which
// finalizes the runtime for the next test.
func newRegistry(t *testing.T, opts ...plugin.RegistryOption) (*plugin.Registry, *plugin.RecordingReporter) {
	t.Helper()
	rec := &plugin.RecordingReporter{}
	base := []plugin.RegistryOption{
		plugin.WithReporter(rec),
		plugin.WithBindings(exchange.RecordClass),
	}
	reg, err := plugin.NewRegistry(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, reg.Close(context.Background()))
	})
	return reg, rec
}

// writeScript writes body to a fresh file and returns its path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.lua")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// register loads body as plugin name.
func register(t *testing.T, reg *plugin.Registry, name, body string) *plugin.Plugin {
	t.Helper()
	return reg.Register(context.Background(), name, writeScript(t, body))
}

const fooScript = `
function test()
end

function test3_int()
	return 123
end
`

const recordScript = `
local Record = require("record")

function make(n)
	local out = {}
	for i = 1, n do
		out[i] = Record.new{a_int = i}
	end
	return out
end

function read(list)
	local out = {}
	for i, r in ipairs(list) do
		out[i] = tostring(r.a_int)
	end
	return table.concat(out, ",")
end

function make_one()
	return Record{a_string = "made in lua", a_double = 2.5}
end

function bump(r)
	r.a_int = r.a_int + 1
end

function not_a_record()
	return 7
end
`
