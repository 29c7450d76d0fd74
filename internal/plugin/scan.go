// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package plugin

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
)

// ScanStats summarizes one ScanPluginFiles call.
type ScanStats struct {
	ScanID   string
	Binaries int
	Plugins  int
	Cached   int // kept from the previous cache without loading
	Loaded   int // loaded and enumerated
	Failed   int // could not be loaded
	Dropped  int // previously known binaries no longer found
}

// scanState is the per-scan working set.
type scanState struct {
	logger   *slog.Logger
	previous map[string]*Binary // by file identity
	visited  map[string]struct{}
	binaries []*Binary
	stats    ScanStats
}

// ScanPluginFiles walks the search path and brings the cache up to date.
// Binaries whose stat matches their cache entry are kept without loading;
// new or changed binaries are loaded and enumerated. Binaries that are no
// longer found are dropped. Failures are logged and never stop the scan.
func (c *Cache) ScanPluginFiles(ctx context.Context) ScanStats {
	ctx, span := tracer.Start(ctx, "plugin.ScanPluginFiles")
	defer span.End()

	start := time.Now()
	st := &scanState{
		previous: make(map[string]*Binary, len(c.binaries)),
		visited:  make(map[string]struct{}),
	}
	st.stats.ScanID = ulid.Make().String()
	st.logger = c.logger.With("scan_id", st.stats.ScanID)

	for _, b := range c.binaries {
		id := fileIdentity(b.filePath)
		if _, dup := st.previous[id]; !dup {
			st.previous[id] = b
		}
	}
	c.knownBinFiles = make(map[string]struct{})

	for _, dir := range c.pluginPath {
		c.scanDirectory(ctx, st, dir)
	}

	st.stats.Dropped = len(st.previous)
	for id, b := range st.previous {
		st.logger.DebugContext(ctx, "dropping binary no longer on search path", "path", b.filePath, "identity", id)
	}

	c.setBinaries(st.binaries)

	st.stats.Binaries = len(c.binaries)
	st.stats.Plugins = len(c.plugins)
	recordScan(time.Since(start))

	span.SetAttributes(
		attribute.Int("plughost.binaries", st.stats.Binaries),
		attribute.Int("plughost.plugins", st.stats.Plugins),
		attribute.Int("plughost.loaded", st.stats.Loaded),
	)
	st.logger.InfoContext(ctx, "plugin scan complete",
		"binaries", st.stats.Binaries,
		"plugins", st.stats.Plugins,
		"cached", st.stats.Cached,
		"loaded", st.stats.Loaded,
		"failed", st.stats.Failed,
		"dropped", st.stats.Dropped,
		"duration", time.Since(start))

	return st.stats
}

// scanDirectory visits the entries of dir in lexical order. Directories are
// visited at most once per scan, which also breaks symlink cycles.
func (c *Cache) scanDirectory(ctx context.Context, st *scanState, dir string) {
	id := fileIdentity(dir)
	if _, ok := st.visited[id]; ok {
		return
	}
	st.visited[id] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			st.logger.DebugContext(ctx, "plugin directory does not exist", "dir", dir)
			return
		}
		st.logger.WarnContext(ctx, "failed to read plugin directory", "dir", dir, "error", err)
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(dir, name)

		// Stat follows symlinks so linked bundles and directories are found.
		info, err := os.Stat(full)
		if err != nil {
			st.logger.DebugContext(ctx, "skipping unreadable entry", "path", full, "error", err)
			continue
		}

		switch {
		case info.IsDir() && c.bundleGlob.Match(name):
			bin := filepath.Join(full, "Contents", c.arch, bundleBinaryName(name))
			c.scanCandidate(ctx, st, bin, full)
		case info.IsDir():
			c.scanDirectory(ctx, st, full)
		case info.Mode().IsRegular() && c.binaryGlob.Match(name):
			c.scanCandidate(ctx, st, full, "")
		}
	}
}

// scanCandidate keeps, rebuilds or adds the binary at path.
func (c *Cache) scanCandidate(ctx context.Context, st *scanState, path, bundlePath string) {
	id := fileIdentity(path)
	if _, ok := c.knownBinFiles[id]; ok {
		return
	}

	stat, err := c.loader.Stat(path)
	if err != nil {
		if bundlePath != "" {
			st.logger.DebugContext(ctx, "bundle has no binary for this architecture",
				"bundle", bundlePath, "arch", c.arch)
		} else {
			st.logger.DebugContext(ctx, "skipping unreadable binary", "path", path, "error", err)
		}
		return
	}
	c.knownBinFiles[id] = struct{}{}

	if prev, ok := st.previous[id]; ok {
		delete(st.previous, id)
		if !prev.changed && prev.matches(stat) {
			st.binaries = append(st.binaries, prev)
			st.stats.Cached++
			recordBinaryScanned(resultCached)
			return
		}
		st.logger.DebugContext(ctx, "binary changed since cache was written", "path", path)
		prev.Unload()
	}

	b := newScannedBinary(ctx, c, path, bundlePath, stat)
	if b.usable {
		st.stats.Loaded++
	} else {
		st.stats.Failed++
	}
	st.binaries = append(st.binaries, b)
}
