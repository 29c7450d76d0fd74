// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/plughost/plughost/internal/observability"
	"github.com/plughost/plughost/internal/plugin"
	"github.com/plughost/plughost/pkg/errutil"
)

// watchConfig holds configuration for the watch command.
type watchConfig struct {
	interval    time.Duration
	metricsAddr string
}

// newWatchCmd creates the watch subcommand.
func newWatchCmd(opts *rootOptions) *cobra.Command {
	cfg := &watchConfig{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rescan the search path periodically",
		Long: `Watch scans like the scan command, then keeps rescanning on an interval
until interrupted, rewriting the cache file after every scan. With
--metrics-addr it serves Prometheus metrics and health probes; readiness
turns green after the first scan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.interval, "interval", time.Minute, "time between scans")
	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address (e.g. 127.0.0.1:9100)")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *rootOptions, cfg *watchConfig) error {
	if cfg.interval <= 0 {
		return oops.Code("INVALID_ARGUMENT").With("interval", cfg.interval).Errorf("interval must be positive")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := newHost(ctx, opts, newLoader(opts.cfg))
	if err != nil {
		return err
	}
	defer h.Close()

	var ready atomic.Bool
	var serverErrs <-chan error
	if cfg.metricsAddr != "" {
		srv := observability.NewServer(cfg.metricsAddr, ready.Load,
			observability.WithLogger(opts.logger),
			observability.WithCollectors(plugin.RegisterMetrics),
		)
		serverErrs, err = srv.Start()
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				opts.logger.Warn("error stopping observability server", "error", err)
			}
		}()
	}

	if err := rescan(ctx, h); err != nil {
		return err
	}
	ready.Store(true)

	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			opts.logger.Info("watch stopped")
			return nil
		case err, ok := <-serverErrs:
			if !ok {
				serverErrs = nil
				continue
			}
			return oops.Wrapf(err, "observability server failed")
		case <-ticker.C:
			if err := rescan(ctx, h); err != nil {
				errutil.LogError(opts.logger, "failed to write plugin cache", err)
			}
		}
	}
}

// rescan brings the cache up to date and persists it.
func rescan(ctx context.Context, h *host) error {
	h.cache.ScanPluginFiles(ctx)
	return h.writeCacheFile(ctx)
}
