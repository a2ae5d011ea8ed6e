// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package plugin

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/samber/oops"
)

// FailureHandler receives failures that must not reach the host: consumer
// errors and panics, hook panics, and failed asynchronous tasks.
type FailureHandler func(err error)

// entry is one registration. Registering the same consumer twice yields two
// entries, each removed on its own.
type entry struct {
	consumer Consumer
	removed  atomic.Bool
}

// consumerList holds the consumers of one kind in registration order.
type consumerList struct {
	mu      sync.Mutex
	entries []*entry
}

func (l *consumerList) add(e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// snapshot copies the current entries. Dispatch iterates the copy so that
// consumers run without the list lock held.
func (l *consumerList) snapshot() []*entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	out := make([]*entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *consumerList) remove(e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.removed.Swap(true) {
		return
	}
	for i, cur := range l.entries {
		if cur == e {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *consumerList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Registry maps event kinds to ordered consumer lists.
//
// The map is guarded by one lock and every list by its own, so dispatching
// one kind never waits on registration or dispatch of another. The two locks
// are never held together.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	lists  map[Kind]*consumerList
	logger *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger uses slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		lists:  make(map[Kind]*consumerList),
		logger: logger,
	}
}

// Subscribe appends consumer to the list for kind, creating the list if
// needed. The same consumer may be subscribed more than once; it is then
// invoked once per registration.
//
// A Subscribe racing with a Dispatch of the same kind may or may not be seen
// by that dispatch.
func (r *Registry) Subscribe(kind Kind, consumer Consumer) error {
	if err := kind.validate(); err != nil {
		return err
	}
	if consumer == nil {
		return oops.In("registry").Code("INVALID_CONSUMER").With("kind", kind.String()).Errorf("consumer is nil")
	}
	r.list(kind, true).add(&entry{consumer: consumer})
	return nil
}

// list returns the list for kind, creating it when create is set.
func (r *Registry) list(kind Kind, create bool) *consumerList {
	r.mu.RLock()
	l := r.lists[kind]
	r.mu.RUnlock()
	if l != nil || !create {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l = r.lists[kind]; l == nil {
		l = &consumerList{}
		r.lists[kind] = l
	}
	return l
}

// Dispatch runs the consumers of event's kind in registration order and
// returns Intercept or Continue.
//
//   - Continue, or any unrecognized code: go on to the next consumer.
//   - Intercept: stop and return Intercept.
//   - Unsubscribe: remove that consumer, then go on as for Continue.
//
// A consumer that returns an error or panics is reported to onFailure (if
// non-nil) and treated as Continue. Dispatch never panics because of a
// consumer.
func (r *Registry) Dispatch(event Event, onFailure FailureHandler) Disposition {
	kind := KindOfEvent(event)
	l := r.list(kind, false)
	if l == nil {
		return Continue
	}

	for _, e := range l.snapshot() {
		// Unsubscribed by a concurrent dispatch after our snapshot was taken.
		if e.removed.Load() {
			continue
		}

		d, err := invoke(e.consumer, kind, event)
		if err != nil {
			if onFailure != nil {
				onFailure(err)
			}
			continue
		}

		switch d {
		case Continue:
		case Intercept:
			return Intercept
		case Unsubscribe:
			l.remove(e)
		default:
			r.logger.Debug("unrecognized disposition treated as continue",
				"kind", kind.String(),
				"disposition", int(d))
		}
	}
	return Continue
}

// invoke calls one consumer, converting a panic into an error.
func invoke(c Consumer, kind Kind, event Event) (d Disposition, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d = Continue
			err = oops.In("registry").Code("HANDLER_FAILURE").
				With("kind", kind.String()).
				Errorf("consumer panicked: %v", rec)
		}
	}()

	d, err = c.OnEvent(event)
	if err != nil {
		return Continue, oops.In("registry").Code("HANDLER_FAILURE").
			With("kind", kind.String()).
			With("event_id", event.EventHeader().ID.String()).
			Wrap(err)
	}
	return d, nil
}

// Len returns the number of consumers registered for kind.
func (r *Registry) Len(kind Kind) int {
	l := r.list(kind, false)
	if l == nil {
		return 0
	}
	return l.len()
}

// Kinds returns every kind that has ever had a consumer, in no particular
// order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.lists))
	for k := range r.lists {
		kinds = append(kinds, k)
	}
	return kinds
}
