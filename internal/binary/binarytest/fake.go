// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

// Package binarytest provides test doubles for binary loaders.
package binarytest

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/plughost/plughost/internal/binary"
)

// ErrNotABinary is returned by FakeLoader.Open for unregistered files.
var ErrNotABinary = errors.New("not a plugin binary")

// Entry builds a raw entry without properties.
func Entry(api string, apiVersion int, id string, major, minor int) binary.Entry {
	return binary.Entry{
		API:          api,
		APIVersion:   apiVersion,
		Identifier:   id,
		VersionMajor: major,
		VersionMinor: minor,
	}
}

// FakeLoader stats real files but serves registered entries instead of
// loading them. Files that were never registered fail to open, like a
// corrupt binary would.
type FakeLoader struct {
	mu       sync.Mutex
	entries  map[string][]binary.Entry
	failures map[string]error
	opens    map[string]int
	closes   map[string]int
}

// Compile-time interface check.
var _ binary.Loader = (*FakeLoader)(nil)

// NewFakeLoader creates an empty fake loader.
func NewFakeLoader() *FakeLoader {
	return &FakeLoader{
		entries:  make(map[string][]binary.Entry),
		failures: make(map[string]error),
		opens:    make(map[string]int),
		closes:   make(map[string]int),
	}
}

// Register makes path openable, exporting entries in order.
func (f *FakeLoader) Register(path string, entries ...binary.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := canonical(path)
	f.entries[key] = entries
	delete(f.failures, key)
}

// Fail makes opening path return err.
func (f *FakeLoader) Fail(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[canonical(path)] = err
}

// Opens returns how many times path was opened.
func (f *FakeLoader) Opens(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[canonical(path)]
}

// TotalOpens returns how many opens happened across all files.
func (f *FakeLoader) TotalOpens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.opens {
		total += n
	}
	return total
}

// Resident returns opens minus closes for path.
func (f *FakeLoader) Resident(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := canonical(path)
	return f.opens[key] - f.closes[key]
}

// Stat stats the real file.
func (f *FakeLoader) Stat(path string) (binary.Stat, error) {
	return binary.StatFile(path)
}

// Open returns a library over the registered entries.
func (f *FakeLoader) Open(path string) (binary.Library, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := canonical(path)
	if err, ok := f.failures[key]; ok {
		return nil, err
	}
	entries, ok := f.entries[key]
	if !ok {
		return nil, ErrNotABinary
	}
	f.opens[key]++
	return &fakeLibrary{loader: f, key: key, entries: entries}, nil
}

type fakeLibrary struct {
	loader  *FakeLoader
	key     string
	entries []binary.Entry
	closed  bool
}

func (l *fakeLibrary) NumPlugins() (int, error) {
	return len(l.entries), nil
}

func (l *fakeLibrary) Plugin(index int) (binary.Entry, error) {
	if index < 0 || index >= len(l.entries) {
		return binary.Entry{}, errors.New("index out of range")
	}
	return l.entries[index], nil
}

func (l *fakeLibrary) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	l.loader.mu.Lock()
	l.loader.closes[l.key]++
	l.loader.mu.Unlock()
	return nil
}

func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// MockLoader is a testify mock of binary.Loader.
type MockLoader struct {
	mock.Mock
}

// Compile-time interface check.
var _ binary.Loader = (*MockLoader)(nil)

// Stat records the call and returns the configured stat.
func (m *MockLoader) Stat(path string) (binary.Stat, error) {
	args := m.Called(path)
	st, _ := args.Get(0).(binary.Stat)
	return st, args.Error(1)
}

// Open records the call and returns the configured library.
func (m *MockLoader) Open(path string) (binary.Library, error) {
	args := m.Called(path)
	lib, _ := args.Get(0).(binary.Library)
	return lib, args.Error(1)
}
