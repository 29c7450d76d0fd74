// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package plugin

import (
	"github.com/plughost/plughost/internal/binary"
)

// APIHandler knows one plugin API. The cache never interprets API semantics
// itself; it asks handlers to recognize entries found in a loaded binary.
type APIHandler interface {
	// Describe returns a fully populated plugin for the entry at index of
	// bin, or false to decline the entry. Handlers build the plugin with
	// NewPlugin; the cache attaches it to bin.
	Describe(bin *Binary, index int, entry binary.Entry) (*Plugin, bool)
}

// Confirmer is implemented by handlers that want to see the plugins they
// serve after every scan or cache read.
type Confirmer interface {
	// Confirm receives the handler's plugins in aggregate order. It replaces
	// whatever the previous call delivered.
	Confirm(plugins []*Plugin)
}

// APIRegistration binds a handler to an API name and inclusive version range.
type APIRegistration struct {
	API        string
	MinVersion int
	MaxVersion int
	Handler    APIHandler
}

// Matches reports whether the registration serves api at version.
func (r APIRegistration) Matches(api string, version int) bool {
	return r.API == api && version >= r.MinVersion && version <= r.MaxVersion
}

// RegisterAPICache registers handler for api versions min through max.
// Overlapping ranges are allowed; lookups return the first registered match.
func (c *Cache) RegisterAPICache(api string, min, max int, handler APIHandler) {
	c.apiHandlers = append(c.apiHandlers, APIRegistration{
		API:        api,
		MinVersion: min,
		MaxVersion: max,
		Handler:    handler,
	})
}

// APIRegistrations returns the registrations in registration order.
func (c *Cache) APIRegistrations() []APIRegistration {
	out := make([]APIRegistration, len(c.apiHandlers))
	copy(out, c.apiHandlers)
	return out
}

// FindAPIHandler returns the first handler registered for api at version.
func (c *Cache) FindAPIHandler(api string, version int) (APIHandler, bool) {
	i := c.findRegistration(api, version)
	if i < 0 {
		return nil, false
	}
	return c.apiHandlers[i].Handler, true
}

// FindPluginHandler returns the handler serving p's API and API version.
func (c *Cache) FindPluginHandler(p *Plugin) (APIHandler, bool) {
	return c.FindAPIHandler(p.API(), p.APIVersion())
}

func (c *Cache) findRegistration(api string, version int) int {
	for i, reg := range c.apiHandlers {
		if reg.Matches(api, version) {
			return i
		}
	}
	return -1
}

// describe asks every matching handler, in registration order, to describe
// the entry. The first one that accepts wins.
func (c *Cache) describe(bin *Binary, index int, entry binary.Entry) (*Plugin, error) {
	for _, reg := range c.apiHandlers {
		if !reg.Matches(entry.API, entry.APIVersion) {
			continue
		}
		if p, ok := reg.Handler.Describe(bin, index, entry); ok && p != nil {
			return p, nil
		}
	}
	return nil, ErrHandlerNotFound(entry.API, entry.APIVersion, entry.Identifier)
}

// confirmPlugins hands every Confirmer the plugins it serves. A plugin goes
// to the first registration matching its API and version.
func (c *Cache) confirmPlugins() {
	if len(c.apiHandlers) == 0 {
		return
	}
	served := make([][]*Plugin, len(c.apiHandlers))
	for _, p := range c.plugins {
		if i := c.findRegistration(p.API(), p.APIVersion()); i >= 0 {
			served[i] = append(served[i], p)
		}
	}
	for i, reg := range c.apiHandlers {
		if conf, ok := reg.Handler.(Confirmer); ok {
			conf.Confirm(served[i])
		}
	}
}
