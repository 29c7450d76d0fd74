// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package process

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/plughost/plughost/pkg/pluginsdk"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// createTempExecutable creates a dummy file that passes stat checks.
func createTempExecutable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "enumerator")
	require.NoError(t, os.WriteFile(path, []byte("dummy"), 0o600))
	return path
}

// mockClientProtocol implements hashiplug.ClientProtocol for testing.
type mockClientProtocol struct {
	enumerator  pluginsdk.Enumerator
	dispenseErr error
	rawDispense interface{} // If set, return this instead of enumerator
}

func (m *mockClientProtocol) Close() error { return nil }
func (m *mockClientProtocol) Dispense(_ string) (interface{}, error) {
	if m.dispenseErr != nil {
		return nil, m.dispenseErr
	}
	if m.rawDispense != nil {
		return m.rawDispense, nil
	}
	return m.enumerator, nil
}
func (m *mockClientProtocol) Ping() error { return nil }

// mockPluginClient implements PluginClient for testing.
type mockPluginClient struct {
	protocol  *mockClientProtocol
	kills     int
	clientErr error
}

func (m *mockPluginClient) Client() (hashiplug.ClientProtocol, error) {
	if m.clientErr != nil {
		return nil, m.clientErr
	}
	return m.protocol, nil
}

func (m *mockPluginClient) Kill() {
	m.kills++
}

// mockClientFactory hands out the same mock client and counts handshakes.
type mockClientFactory struct {
	client *mockPluginClient
	calls  int
}

func (f *mockClientFactory) NewClient(_ string) PluginClient {
	f.calls++
	return f.client
}

func newMockLoader(enum pluginsdk.Enumerator) (*Loader, *mockClientFactory) {
	factory := &mockClientFactory{
		client: &mockPluginClient{protocol: &mockClientProtocol{enumerator: enum}},
	}
	return NewLoader(WithClientFactory(factory), WithRetries(0, time.Millisecond)), factory
}

func TestNewLoader_NilFactory(t *testing.T) {
	assert.Panics(t, func() {
		NewLoader(WithClientFactory(nil))
	})
}

func TestLoader_Stat(t *testing.T) {
	path := createTempExecutable(t)
	loader := NewLoader()

	st, err := loader.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len("dummy")), st.Size)
	assert.NotZero(t, st.ModTime)

	_, err = loader.Stat(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoader_Open_Enumerates(t *testing.T) {
	path := createTempExecutable(t)
	loader, factory := newMockLoader(pluginsdk.Static(
		pluginsdk.Descriptor{API: "ImageEffect", APIVersion: 1, Identifier: "org.example.blur", VersionMajor: 1, VersionMinor: 4},
		pluginsdk.Descriptor{API: "ImageEffect", APIVersion: 1, Identifier: "org.example.sharpen", VersionMajor: 2},
	))

	lib, err := loader.Open(path)
	require.NoError(t, err)

	n, err := lib.NumPlugins()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	e, err := lib.Plugin(0)
	require.NoError(t, err)
	assert.Equal(t, "org.example.blur", e.Identifier)
	assert.Equal(t, 4, e.VersionMinor)

	require.NoError(t, lib.Close())
	assert.Equal(t, 1, factory.client.kills)

	// Closing twice does not kill twice.
	require.NoError(t, lib.Close())
	assert.Equal(t, 1, factory.client.kills)

	_, err = lib.NumPlugins()
	assert.ErrorIs(t, err, ErrLibraryClosed)
}

func TestLoader_Open_MissingExecutable(t *testing.T) {
	loader, factory := newMockLoader(pluginsdk.Static())

	_, err := loader.Open(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Zero(t, factory.calls, "no subprocess should be started for a missing file")
}

func TestLoader_Open_ClientErrorKills(t *testing.T) {
	path := createTempExecutable(t)
	loader, factory := newMockLoader(pluginsdk.Static())
	factory.client.clientErr = errors.New("exec format error")

	_, err := loader.Open(path)
	require.Error(t, err)
	assert.Equal(t, 1, factory.client.kills)
}

func TestLoader_Open_RetriesHandshake(t *testing.T) {
	path := createTempExecutable(t)
	factory := &mockClientFactory{
		client: &mockPluginClient{
			protocol:  &mockClientProtocol{},
			clientErr: errors.New("handshake timeout"),
		},
	}
	loader := NewLoader(WithClientFactory(factory), WithRetries(2, time.Millisecond))

	_, err := loader.Open(path)
	require.Error(t, err)
	assert.Equal(t, 3, factory.calls)
	assert.Equal(t, 3, factory.client.kills)
}

func TestLoader_Open_DispenseError(t *testing.T) {
	path := createTempExecutable(t)
	loader, factory := newMockLoader(nil)
	factory.client.protocol.dispenseErr = errors.New("unknown plugin")

	_, err := loader.Open(path)
	require.Error(t, err)
	assert.Equal(t, 1, factory.client.kills)
}

func TestLoader_Open_WrongDispenseType(t *testing.T) {
	path := createTempExecutable(t)
	loader, factory := newMockLoader(nil)
	factory.client.protocol.rawDispense = "not an enumerator"

	_, err := loader.Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pluginsdk.Enumerator")
	assert.Equal(t, 1, factory.client.kills)
}
