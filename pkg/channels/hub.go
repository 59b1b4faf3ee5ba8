package channels

import (
	"sync"
	"sync/atomic"
)

// Hub fans published values out to a dynamic set of subscribers.
//
// Subscribers may join and leave at any time. Each subscriber owns a buffered
// channel; publishing never blocks and a full subscriber loses its oldest
// queued value rather than the newest one.
type Hub[T any] struct {
	mu      sync.Mutex
	subs    map[uint64]chan T
	next    uint64
	buffer  int
	closed  bool
	dropped atomic.Int64
}

// NewHub creates a Hub whose subscriber channels hold buffer values.
func NewHub[T any](buffer int) *Hub[T] {
	if buffer < 1 {
		buffer = 1
	}

	return &Hub[T]{
		subs:   make(map[uint64]chan T),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. The returned cancel func removes it
// and closes its channel; calling it more than once is safe. Subscribing to a
// closed hub returns an already closed channel.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan T, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}

	return ch, cancel
}

// Publish delivers msg to every current subscriber without blocking.
func (h *Hub[T]) Publish(msg T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	for _, ch := range h.subs {
		discarded, err := SendLatest(ch, msg)
		if discarded || err != nil {
			h.dropped.Add(1)
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// Len returns the number of active subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Dropped returns how many values were discarded for slow subscribers.
func (h *Hub[T]) Dropped() int64 {
	return h.dropped.Load()
}
