// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package plugin

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/samber/oops"

	"github.com/pce-editor/pce/pkg/errutil"
	pluginapi "github.com/pce-editor/pce/pkg/plugin"
)

// Manager discovers plugins in a directory and loads them through the
// runtime loaders it was given.
type Manager struct {
	pluginsDir string
	luaLoader  Loader
	logger     *slog.Logger
	loaded     map[string]*Loaded
	mu         sync.RWMutex
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLuaLoader sets the loader for Lua plugins.
func WithLuaLoader(l Loader) ManagerOption {
	return func(m *Manager) {
		m.luaLoader = l
	}
}

// WithManagerLogger sets the logger used for skipped plugins.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a plugin manager.
func NewManager(pluginsDir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		pluginsDir: pluginsDir,
		logger:     slog.Default(),
		loaded:     make(map[string]*Loaded),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DiscoveredPlugin contains a manifest and its directory.
type DiscoveredPlugin struct {
	Manifest *Manifest
	Dir      string
}

// Loaded is a discovered plugin whose code has been loaded.
type Loaded struct {
	Manifest *Manifest
	Dir      string
	Plugin   pluginapi.Plugin
}

// Discover finds all valid plugins in the plugins directory, in directory
// name order. Invalid plugins are logged and skipped. A missing plugins
// directory is not an error.
func (m *Manager) Discover(_ context.Context) ([]*DiscoveredPlugin, error) {
	entries, err := os.ReadDir(m.pluginsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, oops.In("manager").With("dir", m.pluginsDir).Hint("failed to read plugins directory").Wrap(err)
	}

	var plugins []*DiscoveredPlugin
	seen := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(m.pluginsDir, entry.Name())
		manifest, err := ReadManifest(pluginDir)
		if err != nil {
			errutil.LogError(m.logger, "skipping plugin", err)
			continue
		}

		if prev, dup := seen[manifest.Name]; dup {
			errutil.LogError(m.logger, "skipping plugin", oops.In("manager").Code("DUPLICATE_PLUGIN").
				With("plugin", manifest.Name).
				With("dir", pluginDir).
				With("first_dir", prev).
				Errorf("plugin name already used"))
			continue
		}
		seen[manifest.Name] = pluginDir

		plugins = append(plugins, &DiscoveredPlugin{
			Manifest: manifest,
			Dir:      pluginDir,
		})
	}

	return plugins, nil
}

// ReadManifest reads, schema-checks and parses dir/plugin.yaml.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the plugins directory
	if err != nil {
		return nil, oops.In("manifest").Code("INVALID_MANIFEST").With("path", path).Hint("missing manifest").Wrap(err)
	}
	if err := ValidateSchema(data); err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return manifest, nil
}

// LoadAll discovers and loads every plugin in the plugins directory and
// returns them sorted by priority, highest first, then by name.
//
// A plugin that fails to load is logged and skipped; the rest still load.
func (m *Manager) LoadAll(ctx context.Context) ([]*Loaded, error) {
	discovered, err := m.Discover(ctx)
	if err != nil {
		return nil, err
	}

	var loaded []*Loaded
	for _, dp := range discovered {
		l, err := m.Load(ctx, dp)
		if err != nil {
			errutil.LogError(m.logger, "failed to load plugin", err)
			continue
		}
		loaded = append(loaded, l)
	}

	sort.SliceStable(loaded, func(i, j int) bool {
		if loaded[i].Manifest.Priority != loaded[j].Manifest.Priority {
			return loaded[i].Manifest.Priority > loaded[j].Manifest.Priority
		}
		return loaded[i].Manifest.Name < loaded[j].Manifest.Name
	})
	return loaded, nil
}

// Load loads a single discovered plugin with the loader for its type.
func (m *Manager) Load(ctx context.Context, dp *DiscoveredPlugin) (*Loaded, error) {
	var loader Loader
	switch dp.Manifest.Type {
	case TypeLua:
		loader = m.luaLoader
	}
	if loader == nil {
		return nil, oops.In("manager").Code("UNSUPPORTED_TYPE").
			With("plugin", dp.Manifest.Name).
			With("type", string(dp.Manifest.Type)).
			Errorf("no loader configured for plugin type")
	}

	p, err := loader.Load(ctx, dp.Manifest, dp.Dir)
	if err != nil {
		return nil, oops.In("manager").With("plugin", dp.Manifest.Name).Wrap(err)
	}

	l := &Loaded{Manifest: dp.Manifest, Dir: dp.Dir, Plugin: p}

	m.mu.Lock()
	m.loaded[dp.Manifest.Name] = l
	m.mu.Unlock()

	m.logger.Info("loaded plugin",
		"plugin", dp.Manifest.Name,
		"type", dp.Manifest.Type,
		"version", dp.Manifest.Version)

	return l, nil
}

// Get returns a loaded plugin by name.
func (m *Manager) Get(name string) (*Loaded, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loaded[name]
	return l, ok
}

// ListPlugins returns names of all loaded plugins.
func (m *Manager) ListPlugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.loaded))
	for name := range m.loaded {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Close forgets all loaded plugins.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = make(map[string]*Loaded)
}
