// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/plughost/plughost/internal/apihandler"
	"github.com/plughost/plughost/internal/binary"
	"github.com/plughost/plughost/internal/binary/native"
	"github.com/plughost/plughost/internal/binary/process"
	"github.com/plughost/plughost/internal/config"
	"github.com/plughost/plughost/internal/plugin"
	"github.com/plughost/plughost/internal/xdg"
	"github.com/plughost/plughost/pkg/errutil"
)

// host is one configured plugin cache and the handlers registered on it.
type host struct {
	cache    *plugin.Cache
	handlers []*apihandler.Generic
	cfg      *config.Config
	opts     *rootOptions
}

// newLoader selects the binary loader named by the configuration.
func newLoader(cfg *config.Config) binary.Loader {
	if cfg.Loader == config.LoaderProcess {
		return process.NewLoader(process.WithRetries(uint64(cfg.LoadRetries), process.DefaultRetryBackoff))
	}
	return native.NewLoader()
}

// newHost builds a cache from the configuration and reads the cache file
// if there is one. A missing cache file is not an error.
func newHost(ctx context.Context, opts *rootOptions, loader binary.Loader) (*host, error) {
	cfg := opts.cfg
	cache, err := plugin.NewCache(loader,
		plugin.WithLogger(opts.logger),
		plugin.WithBundlePattern(cfg.BundlePattern),
		plugin.WithBinaryPattern(cfg.BinaryPattern),
		plugin.WithArch(cfg.Arch),
	)
	if err != nil {
		return nil, err
	}

	h := &host{cache: cache, cfg: cfg, opts: opts}
	for _, api := range cfg.APIs {
		handlerOpts := []apihandler.Option{
			apihandler.WithRequiredProperties(api.RequiredProperties...),
			apihandler.WithLogger(opts.logger),
		}
		if len(api.KeptProperties) > 0 {
			handlerOpts = append(handlerOpts, apihandler.WithKeptProperties(api.KeptProperties...))
		}
		handler := apihandler.NewGeneric(api.Name, handlerOpts...)
		cache.RegisterAPICache(api.Name, api.MinVersion, api.MaxVersion, handler)
		h.handlers = append(h.handlers, handler)
	}
	for _, dir := range cfg.SearchPaths {
		cache.AddFileToPath(dir)
	}

	if err := h.readCacheFile(ctx); err != nil {
		cache.Close()
		return nil, err
	}
	return h, nil
}

func (h *host) readCacheFile(ctx context.Context) error {
	f, err := os.Open(h.cfg.CacheFile)
	if errors.Is(err, fs.ErrNotExist) {
		h.opts.logger.DebugContext(ctx, "no plugin cache yet", "path", h.cfg.CacheFile)
		return nil
	}
	if err != nil {
		return oops.With("path", h.cfg.CacheFile).Wrapf(err, "open plugin cache")
	}
	defer func() { _ = f.Close() }()

	if err := h.cache.ReadCache(ctx, f); err != nil {
		// A corrupt cache only costs a full rescan.
		errutil.LogWarn(ctx, h.opts.logger, "discarding unreadable plugin cache", err)
	}
	return nil
}

// writeCacheFile replaces the cache file atomically.
func (h *host) writeCacheFile(ctx context.Context) error {
	dir := filepath.Dir(h.cfg.CacheFile)
	if err := xdg.EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".plugins-*.xml")
	if err != nil {
		return oops.With("dir", dir).Wrapf(err, "create temporary cache file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := h.cache.WritePluginCache(ctx, tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return oops.With("path", tmp.Name()).Wrapf(err, "close temporary cache file")
	}
	if err := os.Rename(tmp.Name(), h.cfg.CacheFile); err != nil {
		return oops.With("path", h.cfg.CacheFile).Wrapf(err, "replace plugin cache")
	}
	return nil
}

func (h *host) Close() {
	h.cache.Close()
}
