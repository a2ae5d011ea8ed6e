// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

// Package plugin is the plugin-facing API of the editor host: events, event
// consumers, the per-instance subscription registry and the SubInstance that
// binds a plugin to one editor.
package plugin

import (
	"crypto/rand"
	"reflect"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Event is something that happened in the editor. Events are immutable
// values; consumers must not modify them.
//
// Events are routed by their exact dynamic type. A consumer subscribed to
// KeyPress does not receive *KeyPress, and no event is ever routed by an
// interface it implements.
type Event interface {
	EventHeader() Header
}

// Header carries the identity shared by every event.
type Header struct {
	ID        ulid.ULID
	Timestamp time.Time
}

// EventHeader implements Event for any type embedding Header.
func (h Header) EventHeader() Header { return h }

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewHeader stamps a new event with a monotonic ULID and the current time.
func NewHeader() Header {
	now := time.Now()

	entropyLock.Lock()
	defer entropyLock.Unlock()
	return Header{
		ID:        ulid.MustNew(ulid.Timestamp(now), entropy),
		Timestamp: now,
	}
}

// Kind identifies an event type. It is the key of the subscription registry.
// The zero Kind is invalid.
type Kind struct {
	t reflect.Type
}

// KindOf returns the Kind of the event type E.
func KindOf[E Event]() Kind {
	return Kind{t: reflect.TypeFor[E]()}
}

// KindOfEvent returns the Kind of the dynamic type of event.
// A nil event yields the zero Kind.
func KindOfEvent(event Event) Kind {
	if event == nil {
		return Kind{}
	}
	return Kind{t: reflect.TypeOf(event)}
}

// IsZero reports whether k is the zero Kind.
func (k Kind) IsZero() bool { return k.t == nil }

// String returns the package-qualified type name, e.g. "plugin.KeyPress".
func (k Kind) String() string {
	if k.t == nil {
		return "<nil>"
	}
	return k.t.String()
}

// validate rejects kinds that no event can ever have: the zero Kind and
// interface types.
func (k Kind) validate() error {
	if k.t == nil {
		return oops.In("registry").Code("INVALID_KIND").Errorf("event kind is nil")
	}
	if k.t.Kind() == reflect.Interface {
		return oops.In("registry").Code("INVALID_KIND").
			With("kind", k.String()).
			Hint("subscribe to a concrete event type").
			Errorf("event kind %s is an interface", k)
	}
	return nil
}
