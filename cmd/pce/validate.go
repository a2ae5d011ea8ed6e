// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	plugins "github.com/pce-editor/pce/internal/plugin"
	"github.com/pce-editor/pce/internal/plugin/capability"
	"github.com/pce-editor/pce/internal/plugin/hostfunc"
	"github.com/pce-editor/pce/internal/plugin/lua"
)

// newValidateCmd creates the validate subcommand.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [plugin-dir...]",
		Short: "Check plugin manifests and scripts",
		Long: `Validate each plugin directory given, or every subdirectory of the
plugins directory if none is given. A plugin is valid when its manifest
passes the schema, its capability grants compile and its entry script
compiles. Scripts are not run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args)
		},
	}
}

func runValidate(cmd *cobra.Command, dirs []string) error {
	cfg, logger, err := resolveConfig(cmd.Flags())
	if err != nil {
		return err
	}

	if len(dirs) == 0 {
		dirs, err = pluginDirs(cfg.PluginsDir)
		if err != nil {
			return err
		}
	}

	loader := lua.NewLoader(hostfunc.New(capability.NewEnforcer()), lua.WithLogger(logger))
	out := cmd.OutOrStdout()
	failed := 0
	for _, dir := range dirs {
		name, err := validatePlugin(cmd.Context(), loader, dir)
		if err != nil {
			failed++
			_, _ = fmt.Fprintf(out, "FAIL %s: %v\n", dir, err)
			continue
		}
		_, _ = fmt.Fprintf(out, "ok   %s (%s)\n", dir, name)
	}

	if failed > 0 {
		return oops.In("validate").With("failed", failed).Errorf("%d of %d plugins invalid", failed, len(dirs))
	}
	return nil
}

func validatePlugin(ctx context.Context, loader plugins.Loader, dir string) (string, error) {
	manifest, err := plugins.ReadManifest(dir)
	if err != nil {
		return "", err
	}
	if _, err := loader.Load(ctx, manifest, dir); err != nil {
		return "", err
	}
	return manifest.Name, nil
}

// pluginDirs lists the subdirectories of root.
func pluginDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, oops.In("validate").With("dir", root).Hint("failed to read plugins directory").Wrap(err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs, nil
}
