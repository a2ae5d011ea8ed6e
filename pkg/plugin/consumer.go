// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package plugin

import "github.com/samber/oops"

// EventConsumer handles events of one kind.
//
// OnEvent must produce its Disposition synchronously. Work that outlives the
// call belongs on the owning SubInstance (see SubInstance.Go). A non-nil
// error is reported to the instance's failure handler and the event carries
// on as if Continue had been returned.
type EventConsumer[E Event] interface {
	OnEvent(event E) (Disposition, error)
}

// ConsumerFunc adapts a function to an EventConsumer.
type ConsumerFunc[E Event] func(event E) (Disposition, error)

// OnEvent calls f(event).
func (f ConsumerFunc[E]) OnEvent(event E) (Disposition, error) {
	return f(event)
}

// Consumer is an EventConsumer for an event kind only known at runtime.
type Consumer = EventConsumer[Event]

// Subscriber registers consumers. *SubInstance implements it, and so does
// any plugin type that embeds one.
type Subscriber interface {
	SubscribeKind(kind Kind, consumer Consumer) error
}

// Subscribe registers consumer for events of type E on s.
func Subscribe[E Event](s Subscriber, consumer EventConsumer[E]) error {
	if consumer == nil {
		return oops.In("registry").Code("INVALID_CONSUMER").Errorf("consumer is nil")
	}
	return s.SubscribeKind(KindOf[E](), typedConsumer[E]{consumer: consumer})
}

// SubscribeFunc registers fn for events of type E on s.
func SubscribeFunc[E Event](s Subscriber, fn func(event E) (Disposition, error)) error {
	if fn == nil {
		return oops.In("registry").Code("INVALID_CONSUMER").Errorf("consumer is nil")
	}
	return Subscribe[E](s, ConsumerFunc[E](fn))
}

// typedConsumer narrows a Consumer to one static event type.
type typedConsumer[E Event] struct {
	consumer EventConsumer[E]
}

func (c typedConsumer[E]) OnEvent(event Event) (Disposition, error) {
	e, ok := event.(E)
	if !ok {
		// The registry routes by exact kind, so this only happens if a
		// caller bypasses it.
		return Continue, oops.In("registry").Code("INVALID_KIND").
			With("want", KindOf[E]().String()).
			With("got", KindOfEvent(event).String()).
			Errorf("event routed to consumer of another kind")
	}
	return c.consumer.OnEvent(e)
}
