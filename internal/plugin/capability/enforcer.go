// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

// Package capability decides what a plugin may do inside the editor.
//
// Capabilities are dot-separated names such as "events.subscribe.key_press"
// or "editor.read". Grants are gobwas/glob patterns with '.' as the segment
// separator:
//   - "events.subscribe.*" grants every event kind
//   - "editor.**" grants everything under editor
//   - "**" grants everything
package capability

import (
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Capability name prefixes.
const (
	// SubscribePrefix prefixes the capability needed to subscribe to an
	// event kind, e.g. "events.subscribe.key_press".
	SubscribePrefix = "events.subscribe."
)

// Subscribe returns the capability required to subscribe to kindName.
func Subscribe(kindName string) string {
	return SubscribePrefix + kindName
}

type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer checks plugin capabilities. It denies by default: a plugin
// without grants can do nothing.
//
// Enforcer is safe for concurrent use.
type Enforcer struct {
	grants map[string][]compiledGrant
	mu     sync.RWMutex
}

// NewEnforcer creates an enforcer with no grants.
func NewEnforcer() *Enforcer {
	return &Enforcer{grants: make(map[string][]compiledGrant)}
}

// SetGrants replaces the grants of plugin. Either every pattern compiles and
// all are installed, or none is.
func (e *Enforcer) SetGrants(plugin string, patterns []string) error {
	if plugin == "" {
		return oops.In("capability").Code("INVALID_GRANT").Errorf("plugin name cannot be empty")
	}

	compiled := make([]compiledGrant, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return oops.In("capability").Code("INVALID_GRANT").With("plugin", plugin).With("index", i).
				Errorf("empty capability pattern")
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return oops.In("capability").Code("INVALID_GRANT").With("plugin", plugin).With("pattern", pattern).Wrap(err)
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.grants[plugin] = compiled
	return nil
}

// RemoveGrants forgets plugin. Unknown plugins are ignored.
func (e *Enforcer) RemoveGrants(plugin string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, plugin)
}

// Grants returns a copy of the patterns granted to plugin, or nil.
func (e *Enforcer) Grants(plugin string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	grants, ok := e.grants[plugin]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// Check reports whether plugin holds capability.
func (e *Enforcer) Check(plugin, capability string) bool {
	if capability == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, grant := range e.grants[plugin] {
		if grant.glob.Match(capability) {
			return true
		}
	}
	return false
}

// Require is Check returning a CAPABILITY_DENIED error on refusal.
func (e *Enforcer) Require(plugin, capability string) error {
	if e.Check(plugin, capability) {
		return nil
	}
	return oops.In("capability").Code("CAPABILITY_DENIED").
		With("plugin", plugin).
		With("capability", capability).
		Hint("add the capability to the plugin manifest").
		Errorf("plugin %q lacks capability %q", plugin, capability)
}
