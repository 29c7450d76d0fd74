// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/plughost/plughost/internal/config"
)

// newSchemaCmd creates the schema subcommand. It needs no configuration,
// so it skips the root's config loading.
func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for config.yaml",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			return printOut(cmd, string(data)+"\n")
		},
	}
}
