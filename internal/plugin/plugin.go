// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package plugin

import (
	"sort"
	"strconv"

	"github.com/plughost/plughost/internal/binary"
)

// noCopy may be embedded into structs which must not be copied after first use.
// go vet's copylocks check reports copies.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Descriptor identifies a plugin and its version.
type Descriptor struct {
	API          string
	APIVersion   int
	Identifier   string
	VersionMajor int
	VersionMinor int
}

// DescriptorFromEntry copies the identity fields of a raw entry.
func DescriptorFromEntry(e binary.Entry) Descriptor {
	return Descriptor{
		API:          e.API,
		APIVersion:   e.APIVersion,
		Identifier:   e.Identifier,
		VersionMajor: e.VersionMajor,
		VersionMinor: e.VersionMinor,
	}
}

// SamePlugin reports whether d and o are versions of the same plugin.
func (d Descriptor) SamePlugin(o Descriptor) bool {
	return d.API == o.API && d.APIVersion == o.APIVersion && d.Identifier == o.Identifier
}

// Key returns "api/apiVersion/identifier", equal for SamePlugin descriptors.
func (d Descriptor) Key() string {
	return d.API + "/" + strconv.Itoa(d.APIVersion) + "/" + d.Identifier
}

// Version returns "major.minor".
func (d Descriptor) Version() string {
	return strconv.Itoa(d.VersionMajor) + "." + strconv.Itoa(d.VersionMinor)
}

// Plugin is one plugin exported by a Binary. Plugins are owned by their
// Binary and are only handled by pointer.
type Plugin struct {
	noCopy noCopy

	desc   Descriptor
	binary *Binary // owner; not owned
	index  int     // export index inside binary
	props  map[string]string
}

// NewPlugin creates a plugin found at the given export index. API handlers
// call this from Describe; the plugin belongs to a binary once added to it.
func NewPlugin(index int, desc Descriptor, props map[string]string) *Plugin {
	return &Plugin{
		desc:  desc,
		index: index,
		props: binary.CopyProperties(props),
	}
}

// Descriptor returns the plugin's identity.
func (p *Plugin) Descriptor() Descriptor { return p.desc }

// API returns the plugin API name.
func (p *Plugin) API() string { return p.desc.API }

// APIVersion returns the plugin API version.
func (p *Plugin) APIVersion() int { return p.desc.APIVersion }

// Identifier returns the plugin identifier.
func (p *Plugin) Identifier() string { return p.desc.Identifier }

// VersionMajor returns the plugin major version.
func (p *Plugin) VersionMajor() int { return p.desc.VersionMajor }

// VersionMinor returns the plugin minor version.
func (p *Plugin) VersionMinor() int { return p.desc.VersionMinor }

// Binary returns the binary the plugin lives in.
func (p *Plugin) Binary() *Binary { return p.binary }

// Index returns where the plugin lives inside its binary.
func (p *Plugin) Index() int { return p.index }

// Property returns a per-API property.
func (p *Plugin) Property(key string) (string, bool) {
	v, ok := p.props[key]
	return v, ok
}

// Properties returns a copy of the per-API properties.
func (p *Plugin) Properties() map[string]string {
	return binary.CopyProperties(p.props)
}

// propertyKeys returns property names in sorted order.
func (p *Plugin) propertyKeys() []string {
	keys := make([]string, 0, len(p.props))
	for k := range p.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Trumps reports whether p should supersede other. A strictly greater major
// version wins; with equal majors a strictly greater minor wins. Equal
// versions trump neither way.
func (p *Plugin) Trumps(other *Plugin) bool {
	if p.desc.VersionMajor > other.desc.VersionMajor {
		return true
	}
	return p.desc.VersionMajor == other.desc.VersionMajor &&
		p.desc.VersionMinor > other.desc.VersionMinor
}

// ResolveDuplicates returns one plugin per Descriptor.Key, in first-seen
// order. A later plugin replaces the kept one only if it trumps it, so equal
// versions keep the first seen.
func ResolveDuplicates(plugins []*Plugin) []*Plugin {
	index := make(map[string]int, len(plugins))
	var out []*Plugin
	for _, p := range plugins {
		key := p.desc.Key()
		if i, ok := index[key]; ok {
			if p.Trumps(out[i]) {
				out[i] = p
			}
			continue
		}
		index[key] = len(out)
		out = append(out, p)
	}
	return out
}

// Acquire makes the plugin's binary resident and returns a handle over it.
// The caller must Release the handle, typically with defer.
func (p *Plugin) Acquire() (*Handle, error) {
	if p.binary == nil {
		return nil, ErrNotResident(p.desc.Identifier)
	}
	lib, gen, err := p.binary.acquire()
	if err != nil {
		return nil, err
	}
	return &Handle{plugin: p, lib: lib, gen: gen}, nil
}
