// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plughost/plughost/internal/binary/binarytest"
	"github.com/plughost/plughost/internal/plugin"
)

func TestCache_FindAPIHandler(t *testing.T) {
	c := newCache(t, binarytest.NewFakeLoader())
	h := &acceptAll{}
	c.RegisterAPICache("ImageEffect", 1, 3, h)

	for _, version := range []int{1, 2, 3} {
		got, ok := c.FindAPIHandler("ImageEffect", version)
		require.True(t, ok, "version %d", version)
		assert.Same(t, h, got)
	}

	_, ok := c.FindAPIHandler("ImageEffect", 5)
	assert.False(t, ok)
	_, ok = c.FindAPIHandler("ImageEffect", 0)
	assert.False(t, ok)
	_, ok = c.FindAPIHandler("Audio", 2)
	assert.False(t, ok)
}

func TestCache_FindAPIHandler_FirstRegisteredWins(t *testing.T) {
	c := newCache(t, binarytest.NewFakeLoader())
	first := &acceptAll{}
	second := &acceptAll{}
	c.RegisterAPICache("ImageEffect", 1, 3, first)
	c.RegisterAPICache("ImageEffect", 2, 4, second)

	got, ok := c.FindAPIHandler("ImageEffect", 2)
	require.True(t, ok)
	assert.Same(t, first, got)

	got, ok = c.FindAPIHandler("ImageEffect", 4)
	require.True(t, ok)
	assert.Same(t, second, got)

	regs := c.APIRegistrations()
	require.Len(t, regs, 2)
	assert.Equal(t, 1, regs[0].MinVersion)
	assert.Equal(t, 4, regs[1].MaxVersion)
}

func TestCache_FindPluginHandler(t *testing.T) {
	c := newCache(t, binarytest.NewFakeLoader())
	h := &acceptAll{}
	c.RegisterAPICache("ImageEffect", 1, 3, h)

	got, ok := c.FindPluginHandler(versioned(1, 0))
	require.True(t, ok)
	assert.Same(t, h, got)

	other := plugin.NewPlugin(0, plugin.Descriptor{API: "ImageEffect", APIVersion: 9, Identifier: "x"}, nil)
	_, ok = c.FindPluginHandler(other)
	assert.False(t, ok)
}

func TestCache_DescribeFallsThroughDecliningHandler(t *testing.T) {
	dir := t.TempDir()
	bin := writeBinary(t, dir, "a.so", "a")
	loader := newLoader(bin, entry("a1"))

	c := newCache(t, loader, dir)
	accept := &acceptAll{}
	c.RegisterAPICache("ImageEffect", 1, 1, declineAll{})
	c.RegisterAPICache("ImageEffect", 1, 1, accept)
	c.ScanPluginFiles(ctx())

	assert.Equal(t, []string{"a1"}, identifiers(c.Plugins()))
	assert.Equal(t, 1, accept.described)
}

func TestCache_UnrecognizedEntriesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	bin := writeBinary(t, dir, "a.so", "a")
	loader := newLoader(bin,
		entry("a1"),
		binarytest.Entry("Audio", 1, "a2", 1, 0),
		binarytest.Entry("ImageEffect", 7, "a3", 1, 0),
		entry("a4"),
	)

	c := newCache(t, loader, dir)
	c.RegisterAPICache("ImageEffect", 1, 2, &acceptAll{})
	c.ScanPluginFiles(ctx())

	plugins := c.Plugins()
	assert.Equal(t, []string{"a1", "a4"}, identifiers(plugins))
	// Plugins keep their export index even when earlier entries were skipped.
	assert.Equal(t, 3, plugins[1].Index())
	assert.True(t, c.Binaries()[0].Usable())
}

func TestCache_ConfirmerSeesServedPlugins(t *testing.T) {
	dir := t.TempDir()
	bin := writeBinary(t, dir, "a.so", "a")
	loader := newLoader(bin,
		entry("a1"),
		binarytest.Entry("Audio", 1, "a2", 1, 0),
		entry("a3"),
	)

	c := newCache(t, loader, dir)
	effects := &confirming{}
	audio := &confirming{}
	c.RegisterAPICache("ImageEffect", 1, 1, effects)
	c.RegisterAPICache("Audio", 1, 1, audio)
	c.ScanPluginFiles(ctx())

	assert.Equal(t, 1, effects.calls)
	assert.Equal(t, []string{"a1", "a3"}, identifiers(effects.confirmed))
	assert.Equal(t, []string{"a2"}, identifiers(audio.confirmed))

	// A rescan replaces what was confirmed before.
	c.ScanPluginFiles(ctx())
	assert.Equal(t, 2, effects.calls)
	assert.Len(t, effects.confirmed, 2)
}
