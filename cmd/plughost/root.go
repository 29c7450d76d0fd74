// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/plughost/plughost/internal/config"
	"github.com/plughost/plughost/internal/logging"
)

const serviceName = "plughost"

// rootOptions is shared by every subcommand.
type rootOptions struct {
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

// NewRootCmd creates the root command for the plughost CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "plughost",
		Short: "Plughost - a plugin binary cache",
		Long: `Plughost keeps a cache of the plugin binaries found on a search path.
Binaries are only loaded when they are new or changed since the last scan;
everything else is read back from the cache file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/plughost/"+config.FileName+")")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newScanCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newResolveCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newSchemaCmd())

	return cmd
}

// load reads configuration and installs the logger.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configFile, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logging.Setup(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.LogFormat,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	})
	return nil
}
