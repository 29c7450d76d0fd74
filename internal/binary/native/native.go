// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

// Package native loads Go shared objects built with -buildmode=plugin.
//
// A shared object must export the symbols named by
// pluginsdk.SymbolNumberOfPlugins and pluginsdk.SymbolGetPlugin with the
// signatures func() int and func(int) *pluginsdk.Descriptor.
//
// The Go runtime never unmaps a plugin once opened, so Close only marks the
// library as released.
package native

import (
	"plugin"

	"github.com/samber/oops"

	"github.com/plughost/plughost/internal/binary"
	"github.com/plughost/plughost/pkg/pluginsdk"
)

// Compile-time interface check.
var _ binary.Loader = (*Loader)(nil)

// Loader opens shared objects with the standard library plugin package.
type Loader struct{}

// NewLoader creates a native loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Stat reports modification time and size without loading the file.
func (l *Loader) Stat(path string) (binary.Stat, error) {
	return binary.StatFile(path)
}

// Open loads the shared object and resolves its enumeration entry points.
func (l *Loader) Open(path string) (binary.Library, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, oops.With("path", path).Wrapf(err, "open shared object")
	}

	countSym, err := p.Lookup(pluginsdk.SymbolNumberOfPlugins)
	if err != nil {
		return nil, oops.With("path", path).
			With("symbol", pluginsdk.SymbolNumberOfPlugins).
			Wrapf(err, "missing entry point")
	}
	count, ok := countSym.(func() int)
	if !ok {
		return nil, oops.With("path", path).
			With("symbol", pluginsdk.SymbolNumberOfPlugins).
			Errorf("entry point has signature %T, want func() int", countSym)
	}

	getSym, err := p.Lookup(pluginsdk.SymbolGetPlugin)
	if err != nil {
		return nil, oops.With("path", path).
			With("symbol", pluginsdk.SymbolGetPlugin).
			Wrapf(err, "missing entry point")
	}
	get, ok := getSym.(func(int) *pluginsdk.Descriptor)
	if !ok {
		return nil, oops.With("path", path).
			With("symbol", pluginsdk.SymbolGetPlugin).
			Errorf("entry point has signature %T, want func(int) *pluginsdk.Descriptor", getSym)
	}

	return &library{path: path, count: count, get: get}, nil
}

type library struct {
	path   string
	count  func() int
	get    func(int) *pluginsdk.Descriptor
	closed bool
}

func (l *library) NumPlugins() (int, error) {
	if l.closed {
		return 0, oops.With("path", l.path).Errorf("library is closed")
	}
	return l.count(), nil
}

func (l *library) Plugin(index int) (binary.Entry, error) {
	if l.closed {
		return binary.Entry{}, oops.With("path", l.path).Errorf("library is closed")
	}
	d := l.get(index)
	if d == nil {
		return binary.Entry{}, oops.With("path", l.path).
			With("index", index).
			Errorf("entry point returned no plugin")
	}
	return toEntry(d), nil
}

func (l *library) Close() error {
	l.closed = true
	return nil
}

func toEntry(d *pluginsdk.Descriptor) binary.Entry {
	return binary.Entry{
		API:          d.API,
		APIVersion:   d.APIVersion,
		Identifier:   d.Identifier,
		VersionMajor: d.VersionMajor,
		VersionMinor: d.VersionMinor,
		Properties:   binary.CopyProperties(d.Properties),
	}
}
