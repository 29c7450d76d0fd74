// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

// Package plugin keeps a staleness-aware index of plugin-bearing binaries.
//
// A Cache remembers, across runs, which binaries exist on the search path,
// their stat metadata and the plugins they export. On startup the host reads
// the previous cache, scans the search path, and only loads binaries that
// are new or changed:
//
//	cache, err := plugin.NewCache(loader)
//	cache.RegisterAPICache("ImageEffect", 1, 1, handler)
//	cache.AddFileToPath("/usr/lib/plughost/plugins")
//	_ = cache.ReadCache(ctx, previous)
//	cache.ScanPluginFiles(ctx)
//	err = cache.WritePluginCache(ctx, out)
//
// A Cache is not safe for concurrent use.
package plugin

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"

	"github.com/plughost/plughost/internal/binary"
	"github.com/plughost/plughost/pkg/errutil"
)

// Default candidate patterns.
const (
	DefaultBundlePattern = "*.bundle"
	DefaultBinaryPattern = "*.so"
)

var tracer = otel.Tracer("github.com/plughost/plughost/internal/plugin")

// Cache is where plugins are kept. It owns every Binary it knows about.
type Cache struct {
	loader binary.Loader
	logger *slog.Logger

	bundlePattern string
	binaryPattern string
	bundleGlob    glob.Glob
	binaryGlob    glob.Glob
	arch          string

	pluginPath    []string
	binaries      []*Binary // owned, in discovery order
	plugins       []*Plugin // derived from binaries
	knownBinFiles map[string]struct{}
	apiHandlers   []APIRegistration
}

// Option configures the Cache.
type Option func(*Cache)

// WithLogger sets the logger for recovered failures and scan summaries.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// WithBundlePattern sets the glob matching bundle directory names.
func WithBundlePattern(pattern string) Option {
	return func(c *Cache) {
		c.bundlePattern = pattern
	}
}

// WithBinaryPattern sets the glob matching bare binary file names.
func WithBinaryPattern(pattern string) Option {
	return func(c *Cache) {
		c.binaryPattern = pattern
	}
}

// WithArch sets the architecture directory looked up inside bundles.
func WithArch(arch string) Option {
	return func(c *Cache) {
		c.arch = arch
	}
}

// NewCache creates an empty cache that loads binaries through loader.
// Returns an error if a candidate pattern does not compile.
func NewCache(loader binary.Loader, opts ...Option) (*Cache, error) {
	if loader == nil {
		return nil, oops.Errorf("plugin cache requires a binary loader")
	}
	c := &Cache{
		loader:        loader,
		bundlePattern: DefaultBundlePattern,
		binaryPattern: DefaultBinaryPattern,
		arch:          DefaultArch(),
		knownBinFiles: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	var err error
	if c.bundleGlob, err = glob.Compile(c.bundlePattern); err != nil {
		return nil, oops.With("pattern", c.bundlePattern).Wrapf(err, "compile bundle pattern")
	}
	if c.binaryGlob, err = glob.Compile(c.binaryPattern); err != nil {
		return nil, oops.With("pattern", c.binaryPattern).Wrapf(err, "compile binary pattern")
	}
	return c, nil
}

// DefaultArch returns the bundle architecture directory for this platform,
// e.g. "linux-amd64".
func DefaultArch() string {
	return runtime.GOOS + "-" + runtime.GOARCH
}

// AddFileToPath appends a directory to the search path.
func (c *Cache) AddFileToPath(dir string) {
	c.pluginPath = append(c.pluginPath, dir)
}

// PluginPath returns the search path in order.
func (c *Cache) PluginPath() []string {
	out := make([]string, len(c.pluginPath))
	copy(out, c.pluginPath)
	return out
}

// Plugins returns every known plugin, binaries in discovery order and
// plugins in index order within each binary. The cache keeps ownership.
func (c *Cache) Plugins() []*Plugin {
	out := make([]*Plugin, len(c.plugins))
	copy(out, c.plugins)
	return out
}

// Binaries returns every known binary in discovery order.
func (c *Cache) Binaries() []*Binary {
	out := make([]*Binary, len(c.binaries))
	copy(out, c.binaries)
	return out
}

// Resolve applies ResolveDuplicates to the aggregate plugin list.
func (c *Cache) Resolve() []*Plugin {
	return ResolveDuplicates(c.plugins)
}

// Close unloads every resident binary.
func (c *Cache) Close() {
	for _, b := range c.binaries {
		b.Unload()
	}
}

// rebuildPlugins recomputes the aggregate plugin list from the owned binaries.
func (c *Cache) rebuildPlugins() {
	c.plugins = c.plugins[:0]
	for _, b := range c.binaries {
		c.plugins = append(c.plugins, b.plugins...)
	}
}

// setBinaries replaces the owned set, unloading binaries no longer owned.
func (c *Cache) setBinaries(binaries []*Binary) {
	kept := make(map[*Binary]struct{}, len(binaries))
	for _, b := range binaries {
		kept[b] = struct{}{}
	}
	for _, b := range c.binaries {
		if _, ok := kept[b]; !ok {
			b.Unload()
		}
	}
	c.binaries = binaries
	c.rebuildPlugins()
	KnownPlugins.Set(float64(len(c.plugins)))
	c.confirmPlugins()
}

func (c *Cache) warn(ctx context.Context, msg string, err error) {
	errutil.LogWarn(ctx, c.logger, msg, err)
}

// fileIdentity returns the canonical absolute path of path, resolving
// symlinks when the file exists.
func fileIdentity(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// bundleBinaryName returns the binary name inside a bundle directory:
// the bundle name without its final extension.
func bundleBinaryName(bundleName string) string {
	return strings.TrimSuffix(bundleName, filepath.Ext(bundleName))
}
