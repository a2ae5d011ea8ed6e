// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the pce CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pce",
		Short: "pce - plugin host for the pce editor",
		Long: `pce hosts editor plugins written in Lua. It discovers plugins,
attaches one sub-instance per plugin to an editor, and dispatches editor
events to their consumers in priority order.`,
		SilenceUsage: true,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	registerConfigFlags(cmd.PersistentFlags())

	cmd.AddCommand(newReplayCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newSchemaCmd())
	cmd.AddCommand(newPluginsCmd())

	return cmd
}
