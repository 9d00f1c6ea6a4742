// Package queue implements the unbounded FIFO that decouples alarm producers
// from the delivery worker.
package queue

import (
	"context"
	"sync"
)

// Queue is an unbounded multiple-producer, single-consumer FIFO.
// Push never blocks. Pop suspends until an item arrives or ctx is done.
//
// Queue also counts unfinished items: every Push must eventually be matched by
// a Done once the consumer is finished with the item, and Wait blocks until
// the count drops to zero.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	// ready wakes the consumer; a single buffered slot coalesces pushes.
	ready chan struct{}
	// unfinished counts items pushed but not yet marked Done.
	unfinished int
	// idle is closed whenever unfinished is zero.
	idle chan struct{}
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	idle := make(chan struct{})
	close(idle)

	return &Queue[T]{
		ready: make(chan struct{}, 1),
		idle:  idle,
	}
}

// Push appends v to the tail of the queue.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)

	if q.unfinished == 0 {
		q.idle = make(chan struct{})
	}

	q.unfinished++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes and returns the head of the queue, waiting for one if needed.
// It returns ctx.Err() when ctx is done first; the queue is left untouched.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]

			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()

			return v, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// Done marks one popped item as finished.
func (q *Queue[T]) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished == 0 {
		return
	}

	q.unfinished--
	if q.unfinished == 0 {
		close(q.idle)
	}
}

// Len returns the number of items waiting to be popped.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Wait blocks until every pushed item has been marked Done or ctx is done.
func (q *Queue[T]) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
