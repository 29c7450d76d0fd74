// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/plughost/plughost/internal/plugin"
)

// scanConfig holds configuration for the scan command.
type scanConfig struct {
	format      string
	metricsFile string
	dryRun      bool
}

// newScanCmd creates the scan subcommand.
func newScanCmd(opts *rootOptions) *cobra.Command {
	cfg := &scanConfig{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the search path and update the plugin cache",
		Long: `Scan reads the cache file, walks every search path directory, loads
binaries that are new or changed, and writes the updated cache file back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, opts, cfg)
		},
	}

	addFormatFlag(cmd, &cfg.format)
	cmd.Flags().StringVar(&cfg.metricsFile, "metrics-file", "", "write scan metrics in Prometheus text format to this file")
	cmd.Flags().BoolVar(&cfg.dryRun, "dry-run", false, "scan without writing the cache file")

	return cmd
}

func runScan(cmd *cobra.Command, opts *rootOptions, cfg *scanConfig) error {
	if err := checkFormat(cfg.format); err != nil {
		return err
	}
	ctx := cmd.Context()

	var reg *prometheus.Registry
	if cfg.metricsFile != "" {
		reg = prometheus.NewRegistry()
		plugin.RegisterMetrics(reg)
	}

	h, err := newHost(ctx, opts, newLoader(opts.cfg))
	if err != nil {
		return err
	}
	defer h.Close()

	stats := h.cache.ScanPluginFiles(ctx)

	if !cfg.dryRun {
		if err := h.writeCacheFile(ctx); err != nil {
			return err
		}
		opts.logger.DebugContext(ctx, "plugin cache written", "path", opts.cfg.CacheFile)
	}

	if reg != nil {
		if err := prometheus.WriteToTextfile(cfg.metricsFile, reg); err != nil {
			return oops.With("path", cfg.metricsFile).Wrapf(err, "write metrics")
		}
	}

	view := newScanView(stats)
	if cfg.format == formatTable {
		return printOut(cmd, formatScanSummary(view))
	}
	return writeStructured(cmd.OutOrStdout(), cfg.format, view)
}
