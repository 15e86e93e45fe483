// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/scripthost/pkg/errutil"
)

func TestDirs(t *testing.T) {
	tests := []struct {
		name   string
		fn     func() (string, error)
		env    string
		envVal string
		want   string
	}{
		{"config from env", ConfigDir, "XDG_CONFIG_HOME", "/custom/config", "/custom/config/scripthost"},
		{"config default", ConfigDir, "XDG_CONFIG_HOME", "", "/home/testuser/.config/scripthost"},
		{"data from env", DataDir, "XDG_DATA_HOME", "/custom/data", "/custom/data/scripthost"},
		{"data default", DataDir, "XDG_DATA_HOME", "", "/home/testuser/.local/share/scripthost"},
		{"config file", ConfigFile, "XDG_CONFIG_HOME", "/c", "/c/scripthost/config.yaml"},
		{"plugins dir", PluginsDir, "XDG_DATA_HOME", "", "/home/testuser/.local/share/scripthost/plugins"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.envVal)
			t.Setenv("HOME", "/home/testuser")

			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirs_NoHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "")

	_, err := ConfigFile()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, CodeNoHome)
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir")

	require.NoError(t, EnsureDir(path))
	require.NoError(t, EnsureDir(path), "idempotent")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}
