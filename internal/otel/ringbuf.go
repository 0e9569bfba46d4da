package otel

import (
	"maps"
	"sync"
)

// DefaultRingSize is the default ring buffer capacity.
const DefaultRingSize = 256

// RingBuffer keeps the most recent events. Safe for concurrent use.
type RingBuffer struct {
	mu     sync.Mutex
	buf    []Event
	pushed uint64 // total pushes; the next slot is pushed % len(buf)
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingBuffer{buf: make([]Event, size)}
}

// Push adds an event, overwriting the oldest when full. Extra is copied
// so later writes by the caller cannot reach the buffered event.
func (r *RingBuffer) Push(e Event) {
	if e.Extra != nil {
		e.Extra = maps.Clone(e.Extra)
	}
	r.mu.Lock()
	r.buf[r.pushed%uint64(len(r.buf))] = e
	r.pushed++
	r.mu.Unlock()
}

// Snapshot returns every buffered event, oldest first.
func (r *RingBuffer) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tail(r.count())
}

// Last returns the n most recent events, oldest first. n <= 0 yields nil.
func (r *RingBuffer) Last(n int) []Event {
	if n <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tail(min(n, r.count()))
}

// Len returns the number of buffered events.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count()
}

// Cap returns the buffer capacity.
func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Stats counts buffered events by kind.
func (r *RingBuffer) Stats() map[EventKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[EventKind]int)
	for _, e := range r.tail(r.count()) {
		counts[e.Kind]++
	}
	return counts
}

func (r *RingBuffer) count() int {
	return int(min(r.pushed, uint64(len(r.buf))))
}

// tail copies the n newest events. Caller holds mu.
func (r *RingBuffer) tail(n int) []Event {
	if n == 0 {
		return nil
	}
	out := make([]Event, n)
	size := uint64(len(r.buf))
	for i := range out {
		out[i] = r.buf[(r.pushed-uint64(n)+uint64(i))%size]
	}
	return out
}
