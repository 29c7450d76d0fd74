// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/plughost/plughost/internal/apihandler"
	"github.com/plughost/plughost/internal/binary"
	"github.com/plughost/plughost/internal/binary/process"
	"github.com/plughost/plughost/internal/plugin"
)

// countingLoader counts the binaries actually started.
type countingLoader struct {
	binary.Loader
	opens atomic.Int32
}

func (l *countingLoader) Open(path string) (binary.Library, error) {
	l.opens.Add(1)
	return l.Loader.Open(path)
}

const (
	blurID  = "org.plughost.sample.blur"
	gainID  = "org.plughost.sample.gain"
	effects = "ImageEffect"
)

var _ = Describe("Plugin cache with the process loader", func() {
	var (
		ctx     context.Context
		root    string
		loader  *countingLoader
		effect  *apihandler.Generic
		audio   *apihandler.Generic
		cache   *plugin.Cache
		logger  *slog.Logger
		newOpts func() []plugin.Option
	)

	newCache := func() *plugin.Cache {
		c, err := plugin.NewCache(loader, newOpts()...)
		Expect(err).NotTo(HaveOccurred())
		effect = apihandler.NewGeneric(effects, apihandler.WithRequiredProperties("label"))
		audio = apihandler.NewGeneric("Audio")
		c.RegisterAPICache(effects, 1, 1, effect)
		c.RegisterAPICache("Audio", 1, 1, audio)
		c.AddFileToPath(filepath.Join(root, "user"))
		c.AddFileToPath(filepath.Join(root, "system"))
		return c
	}

	BeforeEach(func() {
		ctx = context.Background()
		root = GinkgoT().TempDir()
		logger = slog.New(slog.NewTextHandler(GinkgoWriter, nil))
		loader = &countingLoader{Loader: process.NewLoader(process.WithRetries(0, 0))}
		newOpts = func() []plugin.Option {
			return []plugin.Option{
				plugin.WithLogger(logger),
				plugin.WithBinaryPattern("*.plugin"),
			}
		}

		install(filepath.Join(binDir, "sample-1.0"), filepath.Join(root, "user", "old.plugin"))
		install(filepath.Join(binDir, "sample-1.3"), filepath.Join(root, "system", "new.plugin"))
		install(filepath.Join(binDir, "sample-1.0"),
			filepath.Join(root, "system", "pack.bundle", "Contents", plugin.DefaultArch(), "pack"))
		Expect(os.WriteFile(filepath.Join(root, "user", "broken.plugin"), []byte("#!/bin/false\n"), 0o700)).To(Succeed()) //nolint:gosec // must be executable

		cache = newCache()
	})

	AfterEach(func() {
		cache.Close()
	})

	It("loads every binary and records the one that fails", func() {
		stats := cache.ScanPluginFiles(ctx)

		Expect(stats.Binaries).To(Equal(4))
		Expect(stats.Loaded).To(Equal(3))
		Expect(stats.Failed).To(Equal(1))
		Expect(stats.Plugins).To(Equal(9))
		Expect(loader.opens.Load()).To(BeNumerically(">=", 4))

		var unusable []string
		for _, b := range cache.Binaries() {
			Expect(b.Resident()).To(BeFalse(), "scan must not leave %s resident", b.FilePath())
			if !b.Usable() {
				unusable = append(unusable, filepath.Base(b.FilePath()))
			}
		}
		Expect(unusable).To(ConsistOf("broken.plugin"))
	})

	It("finds the bundle binary for this architecture", func() {
		cache.ScanPluginFiles(ctx)

		var bundles []string
		for _, b := range cache.Binaries() {
			if b.BundlePath() != "" {
				bundles = append(bundles, filepath.Base(b.BundlePath()))
			}
		}
		Expect(bundles).To(ConsistOf("pack.bundle"))
	})

	It("resolves the highest version and hands it to the API handler", func() {
		cache.ScanPluginFiles(ctx)

		var blur *plugin.Plugin
		for _, p := range cache.Resolve() {
			if p.Identifier() == blurID {
				blur = p
			}
		}
		Expect(blur).NotTo(BeNil())
		Expect(blur.Descriptor().Version()).To(Equal("1.3"))

		catalogued, ok := effect.Lookup(blurID)
		Expect(ok).To(BeTrue())
		Expect(catalogued).To(BeIdenticalTo(blur))

		_, ok = audio.Lookup(gainID)
		Expect(ok).To(BeTrue())
		Expect(effect.Plugins()).To(HaveLen(2))
	})

	It("reads a live entry through a handle and unloads on release", func() {
		cache.ScanPluginFiles(ctx)
		before := loader.opens.Load()

		p, ok := effect.Lookup(blurID)
		Expect(ok).To(BeTrue())

		first, err := p.Acquire()
		Expect(err).NotTo(HaveOccurred())
		second, err := p.Acquire()
		Expect(err).NotTo(HaveOccurred())
		Expect(loader.opens.Load()).To(Equal(before+1), "handles share one load")

		entry, err := first.Entry()
		Expect(err).NotTo(HaveOccurred())
		Expect(entry.Identifier).To(Equal(blurID))
		Expect(entry.Properties).To(HaveKeyWithValue("built", "1.3"))

		first.Release()
		Expect(p.Binary().Resident()).To(BeTrue())
		second.Release()
		Expect(p.Binary().Resident()).To(BeFalse())
	})

	It("round-trips through the cache file without starting any binary", func() {
		cache.ScanPluginFiles(ctx)
		var buf bytes.Buffer
		Expect(cache.WritePluginCache(ctx, &buf)).To(Succeed())
		written := buf.String()
		scanned := len(cache.Plugins())

		loader = &countingLoader{Loader: process.NewLoader()}
		reread := newCache()
		defer reread.Close()

		Expect(reread.ReadCache(ctx, &buf)).To(Succeed())
		Expect(reread.Plugins()).To(HaveLen(scanned))

		stats := reread.ScanPluginFiles(ctx)
		Expect(stats.Cached).To(Equal(4), "unchanged binaries, including the failed one, come from the cache")
		Expect(stats.Loaded).To(BeZero())
		Expect(loader.opens.Load()).To(BeZero())

		var again bytes.Buffer
		Expect(reread.WritePluginCache(ctx, &again)).To(Succeed())
		Expect(again.String()).To(Equal(written))
	})

	It("reloads only the binary that changed", func() {
		cache.ScanPluginFiles(ctx)
		var buf bytes.Buffer
		Expect(cache.WritePluginCache(ctx, &buf)).To(Succeed())

		// Swap the old build for the new one in place.
		install(filepath.Join(binDir, "sample-1.3"), filepath.Join(root, "user", "old.plugin"))
		later := time.Now().Add(time.Hour)
		Expect(os.Chtimes(filepath.Join(root, "user", "old.plugin"), later, later)).To(Succeed())

		loader = &countingLoader{Loader: process.NewLoader()}
		reread := newCache()
		defer reread.Close()
		Expect(reread.ReadCache(ctx, &buf)).To(Succeed())

		stats := reread.ScanPluginFiles(ctx)
		Expect(stats.Loaded).To(Equal(1))
		Expect(stats.Cached).To(Equal(3))
		Expect(loader.opens.Load()).To(Equal(int32(1)))
	})
})
