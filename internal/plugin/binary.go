// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package plugin

import (
	"context"

	"github.com/plughost/plughost/internal/binary"
)

// Binary is a file holding plugins. It owns its plugins and, while
// resident, the loaded library.
type Binary struct {
	noCopy noCopy

	loader     binary.Loader
	filePath   string
	bundlePath string
	modTime    int64
	size       int64
	changed    bool
	usable     bool
	plugins    []*Plugin

	lib  binary.Library
	refs int
	gen  uint64 // bumped by Unload so stale handles release nothing
}

// newCachedBinary creates a binary from a persisted cache entry. It stats
// the file to decide whether it changed, but never loads it.
func newCachedBinary(loader binary.Loader, file, bundlePath string, modTime, size int64, usable bool) *Binary {
	b := &Binary{
		loader:     loader,
		filePath:   file,
		bundlePath: bundlePath,
		modTime:    modTime,
		size:       size,
		usable:     usable,
	}
	st, err := loader.Stat(file)
	b.changed = err != nil || st.ModTime != modTime || st.Size != size
	return b
}

// newScannedBinary creates a binary from a file found by a scan, loading it
// and describing its plugins through the cache's API handlers. Load failures
// leave the binary with no plugins and marked unusable.
func newScannedBinary(ctx context.Context, c *Cache, file, bundlePath string, st binary.Stat) *Binary {
	b := &Binary{
		loader:     c.loader,
		filePath:   file,
		bundlePath: bundlePath,
		modTime:    st.ModTime,
		size:       st.Size,
		usable:     true,
	}
	b.loadPluginInfo(ctx, c)
	return b
}

// loadPluginInfo loads the binary, enumerates its exports and releases it.
func (b *Binary) loadPluginInfo(ctx context.Context, c *Cache) {
	lib, gen, err := b.acquire()
	if err != nil {
		b.usable = false
		c.warn(ctx, "skipping unloadable plugin binary", err)
		recordBinaryScanned(resultFailed)
		return
	}
	defer b.release(gen)

	n, err := lib.NumPlugins()
	if err != nil {
		b.usable = false
		c.warn(ctx, "skipping plugin binary without entry points", ErrBinaryLoad(b.filePath, err))
		recordBinaryScanned(resultFailed)
		return
	}

	for i := 0; i < n; i++ {
		entry, err := lib.Plugin(i)
		if err != nil {
			c.warn(ctx, "skipping unreadable plugin entry", ErrBinaryLoad(b.filePath, err))
			recordPluginRejected(reasonEntryError)
			continue
		}
		p, err := c.describe(b, i, entry)
		if err != nil {
			c.warn(ctx, "skipping unrecognized plugin entry", err)
			recordPluginRejected(reasonHandlerNotFound)
			continue
		}
		b.AddPlugin(p)
	}
	recordBinaryScanned(resultLoaded)
}

// FilePath returns the full path of the binary file.
func (b *Binary) FilePath() string { return b.filePath }

// BundlePath returns the path of the containing bundle, or "" for bare binaries.
func (b *Binary) BundlePath() string { return b.bundlePath }

// ModTime returns the recorded modification time in Unix nanoseconds.
func (b *Binary) ModTime() int64 { return b.modTime }

// Size returns the recorded file size.
func (b *Binary) Size() int64 { return b.size }

// HasBinaryChanged reports whether the file differed from its cache entry
// when this binary was read from the cache.
func (b *Binary) HasBinaryChanged() bool { return b.changed }

// Usable reports whether the file could be loaded as a plugin binary.
func (b *Binary) Usable() bool { return b.usable }

// NPlugins returns how many plugins the binary holds.
func (b *Binary) NPlugins() int { return len(b.plugins) }

// Plugin returns the plugin at position i.
func (b *Binary) Plugin(i int) *Plugin { return b.plugins[i] }

// Plugins returns the binary's plugins in order.
func (b *Binary) Plugins() []*Plugin {
	out := make([]*Plugin, len(b.plugins))
	copy(out, b.plugins)
	return out
}

// AddPlugin attaches p to the binary. Panics if p already belongs to
// another binary.
func (b *Binary) AddPlugin(p *Plugin) {
	if p.binary != nil && p.binary != b {
		panic("plugin: plugin already belongs to another binary")
	}
	p.binary = b
	b.plugins = append(b.plugins, p)
}

// Resident reports whether the binary is currently loaded.
func (b *Binary) Resident() bool { return b.lib != nil }

// matches reports whether st equals the recorded stat.
func (b *Binary) matches(st binary.Stat) bool {
	return b.modTime == st.ModTime && b.size == st.Size
}

// acquire loads the binary on first use and counts the reference.
func (b *Binary) acquire() (binary.Library, uint64, error) {
	if b.refs == 0 {
		lib, err := b.loader.Open(b.filePath)
		if err != nil {
			return nil, 0, ErrBinaryLoad(b.filePath, err)
		}
		b.lib = lib
	}
	b.refs++
	return b.lib, b.gen, nil
}

// release drops a reference taken in generation gen and unloads the binary
// with the last one.
func (b *Binary) release(gen uint64) {
	if gen != b.gen || b.refs == 0 {
		return
	}
	b.refs--
	if b.refs == 0 {
		b.closeLibrary()
	}
}

// Unload releases the library regardless of outstanding handles.
func (b *Binary) Unload() {
	b.gen++
	b.refs = 0
	b.closeLibrary()
}

func (b *Binary) closeLibrary() {
	if b.lib == nil {
		return
	}
	// Close errors leave nothing to recover; the library is dropped either way.
	_ = b.lib.Close()
	b.lib = nil
}
