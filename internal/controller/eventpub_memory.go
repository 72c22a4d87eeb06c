package controller

import (
	"sync"

	"chatd/pkg/types"
)

// MemoryPublisher stores events in-memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []types.Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e types.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []types.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Event, len(p.events))
	copy(out, p.events)
	return out
}

// Statuses returns the status of every stored event in order.
func (p *MemoryPublisher) Statuses() []types.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Status, len(p.events))
	for i, e := range p.events {
		out[i] = e.Status
	}
	return out
}

// Reset drops stored events.
func (p *MemoryPublisher) Reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}
