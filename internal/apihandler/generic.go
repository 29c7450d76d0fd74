// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

// Package apihandler provides API handlers for the plugin cache.
package apihandler

import (
	"log/slog"

	"github.com/plughost/plughost/internal/binary"
	"github.com/plughost/plughost/internal/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.APIHandler = (*Generic)(nil)
	_ plugin.Confirmer  = (*Generic)(nil)
)

// Generic recognizes every entry of the API it is registered for that
// carries its required properties, and keeps a catalog of the best version
// of each plugin it serves.
type Generic struct {
	api      string
	required []string
	keep     map[string]struct{} // nil keeps every property
	logger   *slog.Logger

	rejected int
	plugins  []*plugin.Plugin
	byID     map[string]*plugin.Plugin
}

// Option configures a Generic handler.
type Option func(*Generic)

// WithRequiredProperties declines entries missing any of keys or carrying
// them empty.
func WithRequiredProperties(keys ...string) Option {
	return func(g *Generic) {
		g.required = append(g.required, keys...)
	}
}

// WithKeptProperties limits the properties stored on plugins to keys.
// Required properties are always kept.
func WithKeptProperties(keys ...string) Option {
	return func(g *Generic) {
		if g.keep == nil {
			g.keep = make(map[string]struct{}, len(keys))
		}
		for _, k := range keys {
			g.keep[k] = struct{}{}
		}
	}
}

// WithLogger sets the logger for declined entries.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generic) {
		g.logger = l
	}
}

// NewGeneric creates a handler for api.
func NewGeneric(api string, opts ...Option) *Generic {
	g := &Generic{
		api:    api,
		byID:   make(map[string]*plugin.Plugin),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.keep != nil {
		for _, k := range g.required {
			g.keep[k] = struct{}{}
		}
	}
	return g
}

// API returns the API name the handler serves.
func (g *Generic) API() string { return g.api }

// Describe implements plugin.APIHandler.
func (g *Generic) Describe(bin *plugin.Binary, index int, e binary.Entry) (*plugin.Plugin, bool) {
	if e.API != g.api {
		return nil, false
	}
	for _, k := range g.required {
		if e.Properties[k] == "" {
			g.rejected++
			g.logger.Debug("declining plugin without required property",
				"binary", bin.FilePath(), "plugin", e.Identifier, "property", k)
			return nil, false
		}
	}
	return plugin.NewPlugin(index, plugin.DescriptorFromEntry(e), g.keptProperties(e.Properties)), true
}

func (g *Generic) keptProperties(props map[string]string) map[string]string {
	if g.keep == nil {
		return props
	}
	out := make(map[string]string, len(g.keep))
	for k, v := range props {
		if _, ok := g.keep[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Confirm implements plugin.Confirmer. It replaces the catalog with the
// best version of each plugin among plugins; equal versions keep the first.
func (g *Generic) Confirm(plugins []*plugin.Plugin) {
	g.plugins = plugin.ResolveDuplicates(plugins)
	g.byID = make(map[string]*plugin.Plugin, len(g.plugins))
	for _, p := range g.plugins {
		// Several API versions may share an identifier; the first kept wins.
		if _, ok := g.byID[p.Identifier()]; !ok {
			g.byID[p.Identifier()] = p
		}
	}
}

// Lookup returns the catalogued plugin with the given identifier.
func (g *Generic) Lookup(identifier string) (*plugin.Plugin, bool) {
	p, ok := g.byID[identifier]
	return p, ok
}

// Plugins returns the catalog in first-seen order.
func (g *Generic) Plugins() []*plugin.Plugin {
	out := make([]*plugin.Plugin, len(g.plugins))
	copy(out, g.plugins)
	return out
}

// Rejected returns how many entries were declined for missing properties.
func (g *Generic) Rejected() int { return g.rejected }
