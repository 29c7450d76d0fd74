// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirs(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (string, error)
		env  string
		home string
	}{
		{"config", ConfigDir, "XDG_CONFIG_HOME", "/home/testuser/.config/plughost"},
		{"data", DataDir, "XDG_DATA_HOME", "/home/testuser/.local/share/plughost"},
		{"cache", CacheDir, "XDG_CACHE_HOME", "/home/testuser/.cache/plughost"},
	}

	for _, tt := range tests {
		t.Run(tt.name+" env var", func(t *testing.T) {
			t.Setenv(tt.env, "/custom")
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, "/custom/plughost", got)
		})
		t.Run(tt.name+" default", func(t *testing.T) {
			t.Setenv(tt.env, "")
			t.Setenv("HOME", "/home/testuser")
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.home, got)
		})
		t.Run(tt.name+" no home", func(t *testing.T) {
			t.Setenv(tt.env, "")
			t.Setenv("HOME", "")
			_, err := tt.fn()
			assert.Error(t, err)
		})
	}
}

func TestPluginsDirAndCacheFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	t.Setenv("XDG_CACHE_HOME", "/cache")

	dir, err := PluginsDir()
	require.NoError(t, err)
	assert.Equal(t, "/data/plughost/plugins", dir)

	file, err := CacheFile()
	require.NoError(t, err)
	assert.Equal(t, "/cache/plughost/plugins.xml", file)
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	// Existing directories are fine.
	require.NoError(t, EnsureDir(path))
}
