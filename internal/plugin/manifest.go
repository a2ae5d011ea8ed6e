// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

// Package plugin discovers plugins on disk and parses their manifests.
package plugin

import (
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	pluginapi "github.com/pce-editor/pce/pkg/plugin"
)

// Type identifies the plugin runtime.
type Type string

// Plugin types supported by the host.
const (
	TypeLua Type = "lua"
)

// ManifestFile is the manifest file name inside a plugin directory.
const ManifestFile = "plugin.yaml"

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name         string     `yaml:"name" jsonschema:"required,pattern=^[a-z]([a-z0-9-]*[a-z0-9])?$,maxLength=64"`
	Version      string     `yaml:"version" jsonschema:"required,minLength=1"`
	Summary      string     `yaml:"summary,omitempty"`
	Type         Type       `yaml:"type" jsonschema:"required,enum=lua"`
	Priority     int        `yaml:"priority,omitempty" jsonschema:"minimum=-1000,maximum=1000"`
	Capabilities []string   `yaml:"capabilities,omitempty"`
	LuaPlugin    *LuaConfig `yaml:"lua-plugin,omitempty"`
}

// LuaConfig holds Lua-specific configuration.
type LuaConfig struct {
	Entry string `yaml:"entry" jsonschema:"required,minLength=1"`
}

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, oops.In("manifest").Code("INVALID_MANIFEST").Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, oops.In("manifest").Code("INVALID_MANIFEST").Hint("invalid YAML").Wrap(err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if err := m.Description().Validate(); err != nil {
		return oops.In("manifest").Code("INVALID_MANIFEST").With("plugin", m.Name).Wrap(err)
	}

	switch m.Type {
	case TypeLua:
		if m.LuaPlugin == nil {
			return oops.In("manifest").Code("INVALID_MANIFEST").With("plugin", m.Name).
				Errorf("lua-plugin is required when type is lua")
		}
		if m.LuaPlugin.Entry == "" {
			return oops.In("manifest").Code("INVALID_MANIFEST").With("plugin", m.Name).
				Errorf("lua-plugin.entry is required")
		}
	default:
		return oops.In("manifest").Code("INVALID_MANIFEST").With("plugin", m.Name).
			Errorf("type must be 'lua', got %q", m.Type)
	}

	return nil
}

// Description converts the manifest to the plugin's static metadata.
func (m *Manifest) Description() pluginapi.Description {
	return pluginapi.Description{
		Name:         m.Name,
		Version:      m.Version,
		Summary:      m.Summary,
		Capabilities: append([]string(nil), m.Capabilities...),
	}
}
