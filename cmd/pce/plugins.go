// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newPluginsCmd creates the plugins subcommand.
func newPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List discovered plugins",
		Long: `List the valid plugins in the plugins directory in dispatch order:
highest priority first, then by name. Invalid plugins are logged and left
out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := resolveConfig(cmd.Flags())
			if err != nil {
				return err
			}

			loaded, err := newManager(cfg.PluginsDir, logger).LoadAll(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tVERSION\tPRIORITY\tCAPABILITIES")
			for _, l := range loaded {
				m := l.Manifest
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m.Name, m.Version, m.Priority, strings.Join(m.Capabilities, ","))
			}
			return w.Flush()
		},
	}
}
