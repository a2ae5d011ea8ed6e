// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package lua

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	plugins "github.com/pce-editor/pce/internal/plugin"
	"github.com/pce-editor/pce/internal/plugin/hostfunc"
	pluginapi "github.com/pce-editor/pce/pkg/plugin"
)

// Compile-time interface check.
var _ plugins.Loader = (*Loader)(nil)

// Loader loads Lua plugins. Loading compiles the entry script and installs
// the manifest's capabilities as grants; no Lua runs until an instance is
// created.
type Loader struct {
	factory *StateFactory
	funcs   *hostfunc.Functions
	logger  *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger instances derive theirs from.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a Lua loader. Panics if funcs is nil (consistent with
// hostfunc.New).
func NewLoader(funcs *hostfunc.Functions, opts ...LoaderOption) *Loader {
	if funcs == nil {
		panic("lua.NewLoader: funcs cannot be nil")
	}
	l := &Loader{
		factory: NewStateFactory(),
		funcs:   funcs,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads and compiles the plugin's entry script.
func (l *Loader) Load(_ context.Context, manifest *plugins.Manifest, dir string) (pluginapi.Plugin, error) {
	if manifest == nil || manifest.LuaPlugin == nil {
		return nil, oops.In("lua").Code("INVALID_MANIFEST").Errorf("manifest has no lua-plugin section")
	}
	errb := oops.In("lua").With("plugin", manifest.Name).With("operation", "load")

	entryPath, err := entryPath(dir, manifest.LuaPlugin.Entry)
	if err != nil {
		return nil, errb.Wrap(err)
	}

	code, err := os.ReadFile(entryPath) //nolint:gosec // entryPath is confined to the plugin directory
	if err != nil {
		return nil, errb.With("path", entryPath).Hint("failed to read entry file").Wrap(err)
	}

	proto, err := Compile(manifest.LuaPlugin.Entry, code)
	if err != nil {
		return nil, errb.With("entry", manifest.LuaPlugin.Entry).Wrap(err)
	}

	if err := l.funcs.Enforcer().SetGrants(manifest.Name, manifest.Capabilities); err != nil {
		return nil, errb.Wrap(err)
	}

	return &Plugin{
		manifest: manifest,
		proto:    proto,
		factory:  l.factory,
		funcs:    l.funcs,
		logger:   l.logger,
	}, nil
}

// entryPath resolves entry inside dir, refusing paths that escape it.
func entryPath(dir, entry string) (string, error) {
	if filepath.IsAbs(entry) {
		return "", oops.Code("INVALID_MANIFEST").With("entry", entry).Errorf("entry must be relative to the plugin directory")
	}
	clean := filepath.Clean(filepath.Join(dir, entry))
	rel, err := filepath.Rel(filepath.Clean(dir), clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", oops.Code("INVALID_MANIFEST").With("entry", entry).Errorf("entry escapes the plugin directory")
	}
	return clean, nil
}

// Compile parses and compiles Lua source. name is used in error messages.
func Compile(name string, code []byte) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(bytes.NewReader(code), name)
	if err != nil {
		return nil, oops.In("lua").Code("INVALID_SCRIPT").With("entry", name).Hint("syntax error").Wrap(err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, oops.In("lua").Code("INVALID_SCRIPT").With("entry", name).Hint("compile error").Wrap(err)
	}
	return proto, nil
}
