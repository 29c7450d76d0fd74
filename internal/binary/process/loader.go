// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

// Package process provides a binary.Loader for plugin executables served
// through HashiCorp's go-plugin system over gRPC.
//
// Opening a binary starts it as a subprocess and dispenses its enumerator;
// closing the library kills the subprocess.
package process

import (
	"context"
	"errors"
	"os/exec"
	"time"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/plughost/plughost/internal/binary"
	"github.com/plughost/plughost/pkg/pluginsdk"
)

// Defaults for handshake retries.
const (
	DefaultRetries      = 1
	DefaultRetryBackoff = 100 * time.Millisecond
)

// ErrLibraryClosed is returned when enumerating through a closed library.
var ErrLibraryClosed = errors.New("library is closed")

// Compile-time interface check.
var _ binary.Loader = (*Loader)(nil)

// PluginClient wraps go-plugin client for testability.
type PluginClient interface {
	// Client returns the RPC client protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the plugin process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path.
	NewClient(execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct{}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(execPath string) PluginClient {
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  pluginsdk.HandshakeConfig,
		Plugins:          pluginsdk.PluginMap,
		Cmd:              exec.Command(execPath), // #nosec G204 -- execPath comes from a search-path scan
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolGRPC},
	})
}

// Loader starts plugin executables and talks to them over go-plugin.
type Loader struct {
	clientFactory ClientFactory
	retries       uint64
	backoff       time.Duration
}

// Option configures the Loader.
type Option func(*Loader)

// WithClientFactory replaces the go-plugin client factory (for testing).
func WithClientFactory(f ClientFactory) Option {
	return func(l *Loader) {
		l.clientFactory = f
	}
}

// WithRetries sets how many times a failed handshake is retried.
// A non-positive backoff selects DefaultRetryBackoff.
func WithRetries(n uint64, backoff time.Duration) Option {
	return func(l *Loader) {
		l.retries = n
		l.backoff = backoff
	}
}

// NewLoader creates a process loader.
// Panics if a nil client factory is supplied.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		clientFactory: &DefaultClientFactory{},
		retries:       DefaultRetries,
		backoff:       DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.clientFactory == nil {
		panic("process: client factory cannot be nil")
	}
	if l.backoff <= 0 {
		l.backoff = DefaultRetryBackoff
	}
	return l
}

// Stat reports modification time and size without starting the executable.
func (l *Loader) Stat(path string) (binary.Stat, error) {
	return binary.StatFile(path)
}

// Open starts the executable and dispenses its enumerator.
func (l *Loader) Open(path string) (binary.Library, error) {
	if _, err := binary.StatFile(path); err != nil {
		return nil, err
	}

	var lib *library
	backoff := retry.WithMaxRetries(l.retries, retry.NewConstant(l.backoff))
	err := retry.Do(context.Background(), backoff, func(_ context.Context) error {
		opened, err := l.dispense(path)
		if err != nil {
			return retry.RetryableError(err)
		}
		lib = opened
		return nil
	})
	if err != nil {
		return nil, oops.With("path", path).Wrapf(err, "start plugin executable")
	}
	return lib, nil
}

// dispense performs a single handshake attempt. The client is killed on failure.
func (l *Loader) dispense(path string) (*library, error) {
	client := l.clientFactory.NewClient(path)

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, oops.Wrapf(err, "connect to plugin")
	}

	raw, err := rpcClient.Dispense(pluginsdk.PluginName)
	if err != nil {
		client.Kill()
		return nil, oops.Wrapf(err, "dispense enumerator")
	}

	enum, ok := raw.(pluginsdk.Enumerator)
	if !ok {
		client.Kill()
		return nil, oops.Errorf("plugin dispensed %T, want pluginsdk.Enumerator", raw)
	}

	return &library{path: path, client: client, enum: enum}, nil
}

// library is a running plugin executable.
type library struct {
	path   string
	client PluginClient
	enum   pluginsdk.Enumerator
}

func (l *library) NumPlugins() (int, error) {
	if l.client == nil {
		return 0, ErrLibraryClosed
	}
	n, err := l.enum.NumPlugins()
	if err != nil {
		return 0, oops.With("path", l.path).Wrapf(err, "enumerate plugins")
	}
	return n, nil
}

func (l *library) Plugin(index int) (binary.Entry, error) {
	if l.client == nil {
		return binary.Entry{}, ErrLibraryClosed
	}
	d, err := l.enum.Plugin(index)
	if err != nil {
		return binary.Entry{}, oops.With("path", l.path).With("index", index).Wrapf(err, "describe plugin")
	}
	return binary.Entry{
		API:          d.API,
		APIVersion:   d.APIVersion,
		Identifier:   d.Identifier,
		VersionMajor: d.VersionMajor,
		VersionMinor: d.VersionMinor,
		Properties:   binary.CopyProperties(d.Properties),
	}, nil
}

func (l *library) Close() error {
	if l.client != nil {
		l.client.Kill()
		l.client = nil
	}
	return nil
}
