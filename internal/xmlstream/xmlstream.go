// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

// Package xmlstream drives a push-style handler over an XML token stream.
package xmlstream

import (
	"encoding/xml"
	"errors"
	"io"

	"github.com/samber/oops"
)

// Handler receives parse events in document order.
type Handler interface {
	StartElement(name string, attrs map[string]string)
	CharData(data []byte)
	EndElement(name string)
}

// Parse reads r to the end, pushing every element and character run to h.
// Element and attribute names are reported without namespace prefixes.
// A read or syntax error stops parsing; events already delivered stand.
func Parse(r io.Reader, h Handler) error {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			line, col := dec.InputPos()
			return oops.With("line", line).With("column", col).Wrapf(err, "parse xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			attrs := make(map[string]string, len(t.Attr))
			for _, a := range t.Attr {
				attrs[a.Name.Local] = a.Value
			}
			h.StartElement(t.Name.Local, attrs)
		case xml.EndElement:
			h.EndElement(t.Name.Local)
		case xml.CharData:
			h.CharData(t)
		}
	}
}
