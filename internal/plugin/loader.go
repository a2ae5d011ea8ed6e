// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package plugin

import (
	"context"

	pluginapi "github.com/pce-editor/pce/pkg/plugin"
)

// Loader turns a manifest into a Plugin for one runtime type.
type Loader interface {
	// Load reads and validates the plugin's code. The returned Plugin is a
	// factory; nothing runs until the host attaches it to an editor.
	Load(ctx context.Context, manifest *Manifest, dir string) (pluginapi.Plugin, error)
}
