package httpapi

import (
	"sync"

	"chatd/pkg/types"
)

const defaultHubBuffer = 256

// Hub fans controller events out to connected event streams. Publish never
// blocks: a subscriber whose buffer is full misses intermediate events, but
// terminal events evict the oldest queued event so a client always learns
// how a generation or load ended. The latest init event is replayed to new
// subscribers since it is only published at startup.
type Hub struct {
	mu   sync.Mutex
	subs map[chan types.Event]struct{}
	buf  int
	init *types.Event
}

// NewHub returns a hub with per-subscriber buffers of size buf.
func NewHub(buf int) *Hub {
	if buf <= 0 {
		buf = defaultHubBuffer
	}
	return &Hub{subs: make(map[chan types.Event]struct{}), buf: buf}
}

func mustDeliver(s types.Status) bool {
	switch s {
	case types.StatusComplete, types.StatusError, types.StatusReady, types.StatusReset, types.StatusInit:
		return true
	}
	return false
}

// Publish implements the controller event publisher.
func (h *Hub) Publish(ev types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.Status == types.StatusInit {
		cp := ev
		h.init = &cp
	}
	for ch := range h.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		eventsDroppedTotal.Inc()
		if !mustDeliver(ev.Status) {
			continue
		}
		// Only this goroutine sends on ch while mu is held, so once a slot
		// is freed the send cannot fail.
		for sent := false; !sent; {
			select {
			case ch <- ev:
				sent = true
			case <-ch:
			}
		}
	}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// must be called once.
func (h *Hub) Subscribe() (<-chan types.Event, func()) {
	ch := make(chan types.Event, h.buf)
	h.mu.Lock()
	if h.init != nil {
		ch <- *h.init
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	eventSubscribers.Inc()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			eventSubscribers.Dec()
		})
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
