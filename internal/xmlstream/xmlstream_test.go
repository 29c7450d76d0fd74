// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package xmlstream_test

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plughost/plughost/internal/xmlstream"
)

// recorder captures events as compact strings.
type recorder struct {
	events []string
}

func (r *recorder) StartElement(name string, attrs map[string]string) {
	ev := "<" + name
	if v, ok := attrs["id"]; ok {
		ev += " id=" + v
	}
	r.events = append(r.events, ev)
}

func (r *recorder) CharData(data []byte) {
	if s := strings.TrimSpace(string(data)); s != "" {
		r.events = append(r.events, "text:"+s)
	}
}

func (r *recorder) EndElement(name string) {
	r.events = append(r.events, "/"+name)
}

func TestParse_EventOrder(t *testing.T) {
	rec := &recorder{}
	err := xmlstream.Parse(strings.NewReader(`<?xml version="1.0"?>
<root><a id="1">hello</a><b id="2"/></root>`), rec)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"<root",
		"<a id=1", "text:hello", "/a",
		"<b id=2", "/b",
		"/root",
	}, rec.events)
}

func TestParse_SyntaxErrorKeepsDeliveredEvents(t *testing.T) {
	rec := &recorder{}
	err := xmlstream.Parse(strings.NewReader(`<root><a id="1"></a><b`), rec)
	require.Error(t, err)
	assert.Equal(t, []string{"<root", "<a id=1", "/a"}, rec.events)
}

func TestParse_MismatchedTag(t *testing.T) {
	err := xmlstream.Parse(strings.NewReader(`<root><a></b></root>`), &recorder{})
	assert.Error(t, err)
}

func TestParse_ReadError(t *testing.T) {
	boom := errors.New("disk on fire")
	err := xmlstream.Parse(iotest.ErrReader(boom), &recorder{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestParse_Empty(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, xmlstream.Parse(strings.NewReader(""), rec))
	assert.Empty(t, rec.events)
}
