// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package plugin

import (
	"context"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
)

// Editor is the editor surface a SubInstance serves. The host owns it; a
// SubInstance only holds a reference to issue commands and read state.
type Editor interface {
	// ID identifies the editor for the lifetime of the process.
	ID() string
}

// Description is the static metadata of a plugin.
type Description struct {
	Name         string
	Version      string
	Summary      string
	Capabilities []string
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern accepts lowercase names of letters, digits and inner hyphens,
// starting with a letter.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// Validate checks the name format and that Version is a semantic version.
func (d Description) Validate() error {
	if d.Name == "" || !namePattern.MatchString(d.Name) {
		return oops.In("plugin").Code("INVALID_DESCRIPTION").With("name", d.Name).
			Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", d.Name)
	}
	if len(d.Name) > maxNameLength {
		return oops.In("plugin").Code("INVALID_DESCRIPTION").With("name", d.Name).
			Errorf("name must be %d characters or less, got %d", maxNameLength, len(d.Name))
	}
	if d.Version == "" {
		return oops.In("plugin").Code("INVALID_DESCRIPTION").With("name", d.Name).Errorf("version is required")
	}
	if _, err := semver.NewVersion(d.Version); err != nil {
		return oops.In("plugin").Code("INVALID_DESCRIPTION").With("name", d.Name).With("version", d.Version).
			Hint("use a semantic version such as 1.2.0").Wrap(err)
	}
	return nil
}

// Plugin is a stateless factory for SubInstances.
//
// Implementations must not keep the editor or parent context passed to
// CreateSubInstance; both belong to the SubInstance that is returned, so that
// every attachment stays independent of the others.
type Plugin interface {
	// Description returns static metadata consumed by the loader and host.
	Description() Description

	// CreateSubInstance builds the service object for one editor. It must
	// not block. The returned instance starts disabled.
	CreateSubInstance(editor Editor, parent context.Context) (Instance, error)
}

// Instance is the host's view of a SubInstance. *SubInstance implements it,
// and so does any type that embeds one.
type Instance interface {
	// Enable activates the instance, running its OnEnable hook on transition.
	Enable()
	// Disable deactivates the instance, running its OnDisable hook on transition.
	Disable()
	// Enabled reports whether the instance is enabled. Hosts deliver events
	// only to enabled instances.
	Enabled() bool
	// InvokeConsumers dispatches event to the instance's consumers and
	// returns Intercept or Continue.
	InvokeConsumers(event Event) Disposition
	// Destroy cancels the instance's scope. The instance is unusable afterwards.
	Destroy()
	// Wait blocks until asynchronous work started by the instance has returned.
	Wait()
}
