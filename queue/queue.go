package queue

import (
	"context"
	"sync"
	"time"
)

// Queue is an unbounded, thread-safe FIFO. Push never blocks; Pop blocks until an item is
// available, the timeout expires or the context is done.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	// signalCh has capacity 1 and holds a token whenever items may be non-empty.
	signalCh chan struct{}
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		signalCh: make(chan struct{}, 1),
	}
}

func (q *Queue[T]) signal() {
	select {
	case q.signalCh <- struct{}{}:
	default:
	}
}

// Push appends t to the end of the queue.
func (q *Queue[T]) Push(t T) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
	q.signal()
}

// PushBounded appends t, then drops the oldest items so that at most limit remain. It returns the
// number of dropped items.
func (q *Queue[T]) PushBounded(t T, limit int) int {
	q.mu.Lock()
	q.items = append(q.items, t)
	dropped := 0
	if len(q.items) > limit {
		dropped = len(q.items) - limit
		var zero T
		for i := range dropped {
			q.items[i] = zero
		}
		q.items = q.items[dropped:]
	}
	q.mu.Unlock()
	q.signal()
	return dropped
}

// TryPop removes and returns the first item, without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	t := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return t, true
}

// Pop removes and returns the first item, waiting up to timeout for one to be pushed. It returns
// false on timeout or when ctx is done.
func (q *Queue[T]) Pop(ctx context.Context, timeout time.Duration) (T, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if t, ok := q.TryPop(); ok {
			return t, true
		}
		select {
		case <-q.signalCh:
		case <-timer.C:
			return q.TryPop()
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops all queued items and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}
