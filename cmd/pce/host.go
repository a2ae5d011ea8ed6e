// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/pce-editor/pce/internal/host"
	"github.com/pce-editor/pce/internal/observability"
	plugins "github.com/pce-editor/pce/internal/plugin"
	"github.com/pce-editor/pce/internal/plugin/capability"
	"github.com/pce-editor/pce/internal/plugin/hostfunc"
	"github.com/pce-editor/pce/internal/plugin/lua"
	"github.com/pce-editor/pce/pkg/errutil"
)

// newManager wires the plugin manager to a Lua loader with a fresh
// capability enforcer.
func newManager(dir string, logger *slog.Logger) *plugins.Manager {
	funcs := hostfunc.New(capability.NewEnforcer())
	loader := lua.NewLoader(funcs, lua.WithLogger(logger))
	return plugins.NewManager(dir,
		plugins.WithLuaLoader(loader),
		plugins.WithManagerLogger(logger))
}

// startHost loads every plugin in cfg.PluginsDir and attaches and enables
// each on a new dispatcher for a headless editor. Plugins that fail to
// attach are logged and skipped.
func startHost(ctx context.Context, cfg *config, logger *slog.Logger, metrics *observability.Metrics) (*host.Dispatcher, error) {
	mgr := newManager(cfg.PluginsDir, logger)
	loaded, err := mgr.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	editor := host.NewHeadlessEditor(cfg.EditorID)
	d := host.NewDispatcher(ctx, editor,
		host.WithLogger(logger),
		host.WithMetrics(metrics))

	for _, l := range loaded {
		if err := d.Attach(l.Plugin, l.Manifest.Priority); err != nil {
			errutil.LogError(logger, "failed to attach plugin", err)
		}
	}
	d.EnableAll()

	logger.Info("plugin host ready",
		"editor", editor.ID(),
		"plugins", len(d.Plugins()),
		"plugins_dir", cfg.PluginsDir)
	return d, nil
}
