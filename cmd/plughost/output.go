// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/plughost/plughost/internal/plugin"
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// pluginView is the printable form of a plugin.
type pluginView struct {
	Identifier string            `json:"identifier" yaml:"identifier"`
	Version    string            `json:"version" yaml:"version"`
	API        string            `json:"api" yaml:"api"`
	APIVersion int               `json:"api_version" yaml:"api_version"`
	Index      int               `json:"index" yaml:"index"`
	Binary     string            `json:"binary" yaml:"binary"`
	Bundle     string            `json:"bundle,omitempty" yaml:"bundle,omitempty"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// binaryView is the printable form of a binary.
type binaryView struct {
	Path    string `json:"path" yaml:"path"`
	Bundle  string `json:"bundle,omitempty" yaml:"bundle,omitempty"`
	Plugins int    `json:"plugins" yaml:"plugins"`
	Usable  bool   `json:"usable" yaml:"usable"`
	Changed bool   `json:"changed" yaml:"changed"`
	Size    int64  `json:"size" yaml:"size"`
}

// scanView is the printable form of a scan summary.
type scanView struct {
	ScanID   string `json:"scan_id" yaml:"scan_id"`
	Binaries int    `json:"binaries" yaml:"binaries"`
	Plugins  int    `json:"plugins" yaml:"plugins"`
	Cached   int    `json:"cached" yaml:"cached"`
	Loaded   int    `json:"loaded" yaml:"loaded"`
	Failed   int    `json:"failed" yaml:"failed"`
	Dropped  int    `json:"dropped" yaml:"dropped"`
}

func newPluginView(p *plugin.Plugin) pluginView {
	v := pluginView{
		Identifier: p.Identifier(),
		Version:    p.Descriptor().Version(),
		API:        p.API(),
		APIVersion: p.APIVersion(),
		Index:      p.Index(),
		Properties: p.Properties(),
	}
	if b := p.Binary(); b != nil {
		v.Binary = b.FilePath()
		v.Bundle = b.BundlePath()
	}
	return v
}

func newBinaryView(b *plugin.Binary) binaryView {
	return binaryView{
		Path:    b.FilePath(),
		Bundle:  b.BundlePath(),
		Plugins: b.NPlugins(),
		Usable:  b.Usable(),
		Changed: b.HasBinaryChanged(),
		Size:    b.Size(),
	}
}

func newScanView(s plugin.ScanStats) scanView {
	return scanView(s)
}

// addFormatFlag registers --format on cmd.
func addFormatFlag(cmd *cobra.Command, format *string) {
	cmd.Flags().StringVar(format, "format", formatTable, "output format (table, json, yaml)")
}

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return oops.Code("INVALID_FORMAT").With("format", format).Errorf("unknown output format %q", format)
	}
}

// writeStructured writes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return oops.Wrapf(err, "marshal JSON")
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return oops.Wrapf(err, "marshal YAML")
		}
		return enc.Close()
	default:
		return checkFormat(format)
	}
}

// formatPluginTable formats plugins as a human-readable table.
func formatPluginTable(plugins []pluginView) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "IDENTIFIER\tVERSION\tAPI\tINDEX\tBINARY")
	_, _ = fmt.Fprintln(w, "----------\t-------\t---\t-----\t------")
	for _, p := range plugins {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s v%d\t%d\t%s\n",
			p.Identifier, p.Version, p.API, p.APIVersion, p.Index, p.Binary)
	}

	_ = w.Flush()
	return buf.String()
}

// formatBinaryTable formats binaries as a human-readable table.
func formatBinaryTable(binaries []binaryView) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "BINARY\tPLUGINS\tUSABLE\tCHANGED")
	_, _ = fmt.Fprintln(w, "------\t-------\t------\t-------")
	for _, b := range binaries {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", b.Path, b.Plugins, yesNo(b.Usable), yesNo(b.Changed))
	}

	_ = w.Flush()
	return buf.String()
}

// formatScanSummary formats scan statistics as aligned key/value lines.
func formatScanSummary(s scanView) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	rows := []struct {
		label string
		value int
	}{
		{"binaries", s.Binaries},
		{"plugins", s.Plugins},
		{"cached", s.Cached},
		{"loaded", s.Loaded},
		{"failed", s.Failed},
		{"dropped", s.Dropped},
	}
	_, _ = fmt.Fprintf(w, "scan\t%s\n", s.ScanID)
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", r.label, r.value)
	}

	_ = w.Flush()
	return buf.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// printOut writes s to the command's standard output.
func printOut(cmd *cobra.Command, s string) error {
	_, err := io.WriteString(cmd.OutOrStdout(), s)
	return err
}
