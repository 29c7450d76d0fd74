// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/plughost/plughost/internal/binary/native"
)

// listConfig holds configuration for the list command.
type listConfig struct {
	format   string
	binaries bool
	api      string
}

// newListCmd creates the list subcommand.
func newListCmd(opts *rootOptions) *cobra.Command {
	cfg := &listConfig{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the plugins recorded in the cache file",
		Long: `List prints the plugins recorded in the cache file without loading or
scanning anything. Run scan first to bring the cache up to date.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, opts, cfg)
		},
	}

	addFormatFlag(cmd, &cfg.format)
	cmd.Flags().BoolVar(&cfg.binaries, "binaries", false, "list binaries instead of plugins")
	cmd.Flags().StringVar(&cfg.api, "api", "", "only list plugins implementing this API")

	return cmd
}

func runList(cmd *cobra.Command, opts *rootOptions, cfg *listConfig) error {
	if err := checkFormat(cfg.format); err != nil {
		return err
	}

	// Reading the cache only stats files, so the loader choice does not matter.
	h, err := newHost(cmd.Context(), opts, native.NewLoader())
	if err != nil {
		return err
	}
	defer h.Close()

	if cfg.binaries {
		binaries := h.cache.Binaries()
		views := make([]binaryView, 0, len(binaries))
		for _, b := range binaries {
			views = append(views, newBinaryView(b))
		}
		if cfg.format == formatTable {
			return printOut(cmd, formatBinaryTable(views))
		}
		return writeStructured(cmd.OutOrStdout(), cfg.format, views)
	}

	plugins := h.cache.Plugins()
	views := make([]pluginView, 0, len(plugins))
	for _, p := range plugins {
		if cfg.api != "" && p.API() != cfg.api {
			continue
		}
		views = append(views, newPluginView(p))
	}
	if cfg.format == formatTable {
		return printOut(cmd, formatPluginTable(views))
	}
	return writeStructured(cmd.OutOrStdout(), cfg.format, views)
}
