// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package plugin

import "strconv"

// Disposition is the code an EventConsumer returns after handling an event.
type Disposition int

// Recognized dispositions.
const (
	// Continue passes the event on to the next consumer, and then to the
	// next plugin instance.
	Continue Disposition = iota

	// Intercept consumes the event. No further consumer in this instance is
	// invoked and the host stops dispatching to lower priority instances.
	Intercept

	// Unsubscribe removes the returning consumer from its event kind. The
	// event itself continues as if Continue had been returned.
	Unsubscribe
)

// String returns the lowercase name of the disposition.
// Unrecognized values render as "unrecognized(<n>)".
func (d Disposition) String() string {
	switch d {
	case Continue:
		return "continue"
	case Intercept:
		return "intercept"
	case Unsubscribe:
		return "unsubscribe"
	default:
		return "unrecognized(" + strconv.Itoa(int(d)) + ")"
	}
}

// Recognized reports whether d is one of Continue, Intercept or Unsubscribe.
func (d Disposition) Recognized() bool {
	return d >= Continue && d <= Unsubscribe
}

// ParseDisposition maps a disposition name to its value. Unknown names
// report false.
func ParseDisposition(name string) (Disposition, bool) {
	switch name {
	case "continue":
		return Continue, true
	case "intercept":
		return Intercept, true
	case "unsubscribe":
		return Unsubscribe, true
	default:
		return Continue, false
	}
}
