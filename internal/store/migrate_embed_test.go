// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	names := make(map[string]bool)
	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	for _, entry := range entries {
		names[entry.Name()] = true
		assert.True(t, pattern.MatchString(entry.Name()),
			"file %s should match NNNNNN_name.(up|down).sql", entry.Name())
	}

	versions, err := allMigrationVersions()
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	for _, v := range versions {
		name, err := MigrationName(v)
		require.NoError(t, err)
		assert.True(t, names[name+".up.sql"], "version %d has no up file", v)
		assert.True(t, names[name+".down.sql"], "version %d has no down file", v)
	}
}
