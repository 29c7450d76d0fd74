// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

// Package pluginsdk provides the SDK for building plughost plugin binaries.
//
// A plugin binary exports a small entry-point table: how many plugins it
// contains, and the descriptor of each one. Two packagings are supported.
//
// Executables communicate with the host via HashiCorp go-plugin over gRPC:
//
//	package main
//
//	import "github.com/plughost/plughost/pkg/pluginsdk"
//
//	func main() {
//		pluginsdk.Serve(&pluginsdk.ServeConfig{
//			Enumerator: pluginsdk.Static(
//				pluginsdk.Descriptor{API: "ImageEffect", APIVersion: 1, Identifier: "org.example.blur", VersionMajor: 1},
//			),
//		})
//	}
//
// Shared objects built with -buildmode=plugin export two functions named by
// SymbolNumberOfPlugins and SymbolGetPlugin:
//
//	func GetNumberOfPlugins() int                   { return plugins.Len() }
//	func GetPlugin(i int) *pluginsdk.Descriptor     { return plugins.At(i) }
package pluginsdk

import (
	"fmt"

	hashiplug "github.com/hashicorp/go-plugin"
)

// Entry point symbol names looked up in shared objects.
const (
	SymbolNumberOfPlugins = "GetNumberOfPlugins"
	SymbolGetPlugin       = "GetPlugin"
)

// PluginName is the name under which the enumerator is dispensed.
const PluginName = "enumerator"

// Descriptor describes one plugin exported by a binary.
type Descriptor struct {
	// API is the plugin API the plugin implements (e.g. "ImageEffect").
	API string
	// APIVersion is the version of that API.
	APIVersion int
	// Identifier is the plugin's unique identifier within the API.
	Identifier string
	// VersionMajor and VersionMinor version the plugin itself.
	VersionMajor int
	VersionMinor int
	// Properties carries per-API data for the host's API handler.
	Properties map[string]string
}

// Enumerator is the entry-point table a plugin binary exposes.
type Enumerator interface {
	// NumPlugins returns how many plugins the binary exports.
	NumPlugins() (int, error)
	// Plugin returns the descriptor at index.
	Plugin(index int) (*Descriptor, error)
}

// StaticEnumerator serves a fixed list of descriptors.
type StaticEnumerator struct {
	descriptors []Descriptor
}

// Static creates an enumerator over descriptors.
func Static(descriptors ...Descriptor) *StaticEnumerator {
	return &StaticEnumerator{descriptors: descriptors}
}

// Len returns the number of descriptors.
func (s *StaticEnumerator) Len() int {
	return len(s.descriptors)
}

// At returns the descriptor at index, or nil when out of range.
func (s *StaticEnumerator) At(index int) *Descriptor {
	if index < 0 || index >= len(s.descriptors) {
		return nil
	}
	d := s.descriptors[index]
	return &d
}

// NumPlugins implements Enumerator.
func (s *StaticEnumerator) NumPlugins() (int, error) {
	return s.Len(), nil
}

// Plugin implements Enumerator.
func (s *StaticEnumerator) Plugin(index int) (*Descriptor, error) {
	d := s.At(index)
	if d == nil {
		return nil, fmt.Errorf("plugin index %d out of range [0,%d)", index, len(s.descriptors))
	}
	return d, nil
}

// HandshakeConfig is the go-plugin handshake configuration.
// Both host and plugins must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PLUGHOST_PLUGIN",
	MagicCookieValue: "plughost-enumerator-v1",
}

// PluginMap is the set of plugins a host can dispense.
var PluginMap = map[string]hashiplug.Plugin{
	PluginName: &EnumeratorPlugin{},
}

// ServeConfig configures the plugin server.
type ServeConfig struct {
	// Enumerator exposes the binary's plugins.
	// Required; Serve will panic if nil.
	Enumerator Enumerator
}

// Serve starts the plugin server. This should be called from main().
// It blocks and never returns under normal operation.
func Serve(config *ServeConfig) {
	if config == nil {
		panic("pluginsdk: config cannot be nil")
	}
	if config.Enumerator == nil {
		panic("pluginsdk: config.Enumerator cannot be nil")
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			PluginName: &EnumeratorPlugin{Impl: config.Enumerator},
		},
		GRPCServer: hashiplug.DefaultGRPCServer,
	})
}
