// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package plugin

import (
	"github.com/plughost/plughost/internal/binary"
)

// Handle keeps a plugin's binary resident until released. Handles over the
// same binary share one load; the last Release unloads it.
//
//	h, err := p.Acquire()
//	if err != nil {
//		return err
//	}
//	defer h.Release()
type Handle struct {
	noCopy noCopy

	plugin *Plugin
	lib    binary.Library
	gen    uint64
}

// Plugin returns the plugin the handle was acquired for.
func (h *Handle) Plugin() *Plugin { return h.plugin }

// Library returns the resident library, or nil after Release or after the
// binary was unloaded underneath the handle.
func (h *Handle) Library() binary.Library {
	if !h.live() {
		return nil
	}
	return h.lib
}

// Entry returns the plugin's raw entry from the resident library.
func (h *Handle) Entry() (binary.Entry, error) {
	if !h.live() {
		return binary.Entry{}, ErrNotResident(h.plugin.Identifier())
	}
	return h.lib.Plugin(h.plugin.index)
}

// live reports whether the load the handle was acquired on is still current.
func (h *Handle) live() bool {
	return h.lib != nil && h.gen == h.plugin.binary.gen
}

// Release gives up the handle's residency. It is safe to call more than once.
func (h *Handle) Release() {
	if h.lib == nil {
		return
	}
	h.plugin.binary.release(h.gen)
	h.lib = nil
}
