package controller

import "chatd/pkg/types"

// EventPublisher receives controller events. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(types.Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(types.Event) {}

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(types.Event)

func (f PublisherFunc) Publish(ev types.Event) { f(ev) }

// Multi fans one event out to every publisher in order.
type Multi []EventPublisher

func (m Multi) Publish(ev types.Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ev)
		}
	}
}
