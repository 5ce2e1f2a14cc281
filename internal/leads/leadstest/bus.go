package leadstest

import (
	"context"
	"sync"

	"tour_portal_backend/internal/events"
)

// Bus records published events and delivers nothing.
type Bus struct {
	mu     sync.Mutex
	Events []events.Event
}

func (b *Bus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = append(b.Events, event)
}

func (b *Bus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *Bus) Subscribe(string, events.Handler) {}

// Named returns the recorded events with the given name.
func (b *Bus) Named(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Event, 0)
	for _, e := range b.Events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

var _ events.Bus = (*Bus)(nil)
