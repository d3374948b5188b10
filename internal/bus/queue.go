package bus

import (
	"context"
	"sync"
)

// queue is a thread-safe unbounded FIFO used for actor mailboxes and for the
// reply inbox of a handling context.
//
// It is unbounded so that a sender never blocks on a slow receiver; a
// handler that fans out to many targets must not deadlock against its own
// inbox.
//
// The signal channel has a buffer of one. Multiple pushes coalesce into one
// wakeup, and Close closes the channel so every waiter returns.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Push appends v to the back of the queue.
// Returns false if the queue is closed.
func (q *queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, v)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryPop removes and returns the front item without blocking.
func (q *queue[T]) TryPop() (T, bool) {
	v, ok, _ := q.tryPop()
	return v, ok
}

func (q *queue[T]) tryPop() (T, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false, q.closed
	}

	v := q.items[0]

	// Clear the slot so the backing array does not pin payloads.
	q.items[0] = zero

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return v, true, q.closed
}

// Pop blocks until an item is available, the queue is closed and drained,
// or ctx is done.
func (q *queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		v, ok, closed := q.tryPop()
		if ok {
			return v, nil
		}
		if closed {
			var zero T
			return zero, ErrClosed
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.signal:
		}
	}
}

// Len returns the number of queued items.
func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further pushes and wakes all waiters. Queued items can still
// be popped.
func (q *queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
