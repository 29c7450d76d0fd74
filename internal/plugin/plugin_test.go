// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plughost/plughost/internal/plugin"
	"github.com/plughost/plughost/pkg/errutil"
)

func versioned(major, minor int) *plugin.Plugin {
	return plugin.NewPlugin(0, plugin.Descriptor{
		API:          "ImageEffect",
		APIVersion:   1,
		Identifier:   "org.example.blur",
		VersionMajor: major,
		VersionMinor: minor,
	}, nil)
}

func TestPlugin_Trumps(t *testing.T) {
	tests := []struct {
		name   string
		p      *plugin.Plugin
		other  *plugin.Plugin
		trumps bool
	}{
		{"greater major beats greater minor", versioned(2, 0), versioned(1, 9), true},
		{"lower major loses", versioned(1, 9), versioned(2, 0), false},
		{"equal versions", versioned(1, 5), versioned(1, 5), false},
		{"lower minor loses", versioned(1, 5), versioned(1, 6), false},
		{"greater minor wins", versioned(1, 6), versioned(1, 5), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.trumps, tt.p.Trumps(tt.other))
		})
	}
}

func TestPlugin_Trumps_EqualVersionsNeitherWay(t *testing.T) {
	a, b := versioned(3, 2), versioned(3, 2)
	assert.False(t, a.Trumps(b))
	assert.False(t, b.Trumps(a))
}

func TestResolveDuplicates(t *testing.T) {
	named := func(id string, major, minor int) *plugin.Plugin {
		return plugin.NewPlugin(0, plugin.Descriptor{
			API: "ImageEffect", APIVersion: 1, Identifier: id,
			VersionMajor: major, VersionMinor: minor,
		}, nil)
	}
	blur10 := named("blur", 1, 0)
	sharpen := named("sharpen", 1, 0)
	blur12 := named("blur", 1, 2)
	blur12again := named("blur", 1, 2)
	blur11 := named("blur", 1, 1)

	got := plugin.ResolveDuplicates([]*plugin.Plugin{blur10, sharpen, blur12, blur12again, blur11})

	require.Len(t, got, 2)
	assert.Same(t, blur12, got[0], "highest version wins and equal versions keep the first seen")
	assert.Same(t, sharpen, got[1])
	assert.Empty(t, plugin.ResolveDuplicates(nil))
}

func TestDescriptor_SamePluginAndKey(t *testing.T) {
	a := plugin.Descriptor{API: "ImageEffect", APIVersion: 1, Identifier: "blur", VersionMajor: 1}
	b := plugin.Descriptor{API: "ImageEffect", APIVersion: 1, Identifier: "blur", VersionMajor: 2, VersionMinor: 4}
	c := plugin.Descriptor{API: "ImageEffect", APIVersion: 2, Identifier: "blur"}

	assert.True(t, a.SamePlugin(b))
	assert.False(t, a.SamePlugin(c))
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "ImageEffect/1/blur", a.Key())
	assert.Equal(t, "2.4", b.Version())
}

func TestNewPlugin_CopiesProperties(t *testing.T) {
	props := map[string]string{"label": "Blur"}
	p := plugin.NewPlugin(2, plugin.Descriptor{Identifier: "blur"}, props)
	props["label"] = "changed"

	v, ok := p.Property("label")
	require.True(t, ok)
	assert.Equal(t, "Blur", v)
	assert.Equal(t, 2, p.Index())

	got := p.Properties()
	got["label"] = "mutated"
	v, _ = p.Property("label")
	assert.Equal(t, "Blur", v)
}

func TestPlugin_AcquireWithoutBinary(t *testing.T) {
	p := versioned(1, 0)
	_, err := p.Acquire()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, plugin.CodeNotResident)
}

func TestBinary_AddPluginOwnedElsewhere(t *testing.T) {
	dir := t.TempDir()
	bin := writeBinary(t, dir, "a.so", "a")
	loader := newLoader(bin, entry("a1"))
	c := newCache(t, loader, dir)
	c.RegisterAPICache("ImageEffect", 1, 1, &acceptAll{})
	c.ScanPluginFiles(ctx())

	bins := c.Binaries()
	require.Len(t, bins, 1)
	owned := bins[0].Plugin(0)

	other := c.Plugins()[0].Binary()
	assert.Same(t, bins[0], other)

	// A binary from another cache may not take it.
	dir2 := t.TempDir()
	bin2 := writeBinary(t, dir2, "b.so", "b")
	loader.Register(bin2)
	c2 := newCache(t, loader, dir2)
	c2.ScanPluginFiles(ctx())
	require.Len(t, c2.Binaries(), 1)
	assert.Panics(t, func() { c2.Binaries()[0].AddPlugin(owned) })
}
