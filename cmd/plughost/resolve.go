// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/plughost/plughost/internal/plugin"
)

// CodeNotFound is returned when resolve is asked for an unknown identifier.
const CodeNotFound = "PLUGIN_NOT_FOUND"

// resolveConfig holds configuration for the resolve command.
type resolveConfig struct {
	format string
	api    string
	load   bool
}

// newResolveCmd creates the resolve subcommand.
func newResolveCmd(opts *rootOptions) *cobra.Command {
	cfg := &resolveConfig{}

	cmd := &cobra.Command{
		Use:   "resolve [identifier]",
		Short: "Show the best version of each cached plugin",
		Long: `Resolve picks one plugin per API, API version and identifier from the
cache file, preferring the highest plugin version and the earliest search path
on ties. With an identifier only that plugin is shown; --load additionally
loads its binary and reads the entry back from it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return runResolve(cmd, opts, cfg, id)
		},
	}

	addFormatFlag(cmd, &cfg.format)
	cmd.Flags().StringVar(&cfg.api, "api", "", "only resolve plugins implementing this API")
	cmd.Flags().BoolVar(&cfg.load, "load", false, "load the binary of the resolved plugin and read its entry live")

	return cmd
}

func runResolve(cmd *cobra.Command, opts *rootOptions, cfg *resolveConfig, id string) error {
	if err := checkFormat(cfg.format); err != nil {
		return err
	}
	if cfg.load && id == "" {
		return oops.Code("INVALID_ARGUMENT").Errorf("--load needs a plugin identifier")
	}

	h, err := newHost(cmd.Context(), opts, newLoader(opts.cfg))
	if err != nil {
		return err
	}
	defer h.Close()

	var resolved []*plugin.Plugin
	for _, p := range h.cache.Resolve() {
		if cfg.api != "" && p.API() != cfg.api {
			continue
		}
		if id != "" && p.Identifier() != id {
			continue
		}
		resolved = append(resolved, p)
	}
	if id != "" && len(resolved) == 0 {
		return oops.Code(CodeNotFound).With("identifier", id).Errorf("no cached plugin %q", id)
	}

	views := make([]pluginView, 0, len(resolved))
	for _, p := range resolved {
		v := newPluginView(p)
		if cfg.load {
			if v, err = loadView(p); err != nil {
				return err
			}
		}
		views = append(views, v)
	}

	if cfg.format == formatTable {
		return printOut(cmd, formatPluginTable(views))
	}
	return writeStructured(cmd.OutOrStdout(), cfg.format, views)
}

// loadView acquires p and builds its view from the live entry.
func loadView(p *plugin.Plugin) (pluginView, error) {
	handle, err := p.Acquire()
	if err != nil {
		return pluginView{}, err
	}
	defer handle.Release()

	entry, err := handle.Entry()
	if err != nil {
		return pluginView{}, plugin.ErrBinaryLoad(p.Binary().FilePath(), err)
	}
	v := newPluginView(p)
	v.Properties = entry.Properties
	return v, nil
}
