// Package recent keeps the most recently delivered alarms for introspection.
package recent

import (
	"sync"

	domain "github.com/oshokin/alarm-relay/internal/domain/alarm"
)

// DefaultCapacity is the number of delivered records retained.
const DefaultCapacity = 100

// Buffer is a fixed-capacity ring of delivered records; the oldest entry is
// evicted once it is full. The delivery worker is the only writer, the lock
// exists for concurrent readers.
type Buffer struct {
	mu    sync.RWMutex
	items []*domain.Record
	// head is the index of the oldest entry once the ring is full.
	head int
	size int
}

// New creates a buffer holding up to capacity records.
// A non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Buffer{
		items: make([]*domain.Record, capacity),
	}
}

// Add appends rec, evicting the oldest record when the buffer is full.
func (b *Buffer) Add(rec *domain.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.head + b.size) % len(b.items)
	b.items[idx] = rec

	if b.size < len(b.items) {
		b.size++
		return
	}

	b.head = (b.head + 1) % len(b.items)
}

// Last returns up to n of the newest records, oldest first.
// Records are cloned so callers may modify them freely.
func (b *Buffer) Last(n int) []*domain.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.size {
		n = b.size
	}

	if n <= 0 {
		return []*domain.Record{}
	}

	out := make([]*domain.Record, 0, n)
	for i := b.size - n; i < b.size; i++ {
		out = append(out, b.items[(b.head+i)%len(b.items)].Clone())
	}

	return out
}

// Len returns the number of records currently held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.size
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.items)
}
