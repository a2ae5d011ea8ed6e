// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package host

import "github.com/oklog/ulid/v2"

// HeadlessEditor is an editor with no surface, used to run plugins against
// scripted events.
type HeadlessEditor struct {
	id string
}

// NewHeadlessEditor returns an editor with the given id, or a fresh ULID if
// id is empty.
func NewHeadlessEditor(id string) *HeadlessEditor {
	if id == "" {
		id = ulid.Make().String()
	}
	return &HeadlessEditor{id: id}
}

// ID implements plugin.Editor.
func (e *HeadlessEditor) ID() string { return e.id }
