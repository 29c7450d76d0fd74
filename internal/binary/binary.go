// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

// Package binary defines the contract between the plugin cache and the
// mechanics of opening a plugin-bearing binary.
//
// A Loader can stat a file without loading it, and can open it into a
// Library whose entry points enumerate the plugins it exports. Concrete
// loaders live in the native (shared objects) and process (go-plugin
// executables) subpackages.
package binary

import (
	"os"

	"github.com/samber/oops"
)

// Stat is the on-disk metadata used to decide whether a binary is stale.
type Stat struct {
	// ModTime is the modification time in Unix nanoseconds.
	ModTime int64
	// Size is the file size in bytes.
	Size int64
}

// Entry is the raw description of one exported plugin.
type Entry struct {
	API          string
	APIVersion   int
	Identifier   string
	VersionMajor int
	VersionMinor int
	// Properties is opaque per-API data. API handlers decide what to keep.
	Properties map[string]string
}

// Library is a resident binary exposing its enumeration entry points.
type Library interface {
	// NumPlugins returns how many plugins the binary exports.
	NumPlugins() (int, error)
	// Plugin returns the raw entry at index.
	Plugin(index int) (Entry, error)
	// Close releases the binary.
	Close() error
}

// Loader opens files as plugin-bearing binaries.
type Loader interface {
	// Stat reports modification time and size without loading the file.
	Stat(path string) (Stat, error)
	// Open loads the file and returns its entry points.
	Open(path string) (Library, error)
}

// StatFile stats path on the local filesystem.
func StatFile(path string) (Stat, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Stat{}, oops.With("path", path).Wrapf(err, "stat binary")
	}
	if info.IsDir() {
		return Stat{}, oops.With("path", path).Errorf("binary path is a directory")
	}
	return Stat{
		ModTime: info.ModTime().UnixNano(),
		Size:    info.Size(),
	}, nil
}

// CopyProperties returns a shallow copy of props, or nil when empty.
func CopyProperties(props map[string]string) map[string]string {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
