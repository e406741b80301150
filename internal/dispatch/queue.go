package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/steveyegge/ffs/internal/event"
)

// DefaultQueueCapacity is the number of results buffered between the event
// source and the dispatcher.
const DefaultQueueCapacity = 100

// ErrQueueClosed is returned by Push after Close.
var ErrQueueClosed = errors.New("event queue closed")

// Queue is a bounded FIFO between one producer (the event source handler)
// and one consumer (the Dispatcher). Push blocks while the queue is full, so
// a slow dispatcher slows the source down instead of losing results.
type Queue struct {
	items chan event.Result
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	pushers sync.WaitGroup
}

// NewQueue creates a queue. A capacity below 1 uses DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		items: make(chan event.Result, capacity),
		done:  make(chan struct{}),
	}
}

// Push enqueues r, blocking while the queue is full. It returns ctx's error
// if ctx is done first, or ErrQueueClosed if the queue is closed before r
// is accepted.
func (q *Queue) Push(ctx context.Context, r event.Result) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.pushers.Add(1)
	q.mu.RUnlock()
	defer q.pushers.Done()

	select {
	case q.items <- r:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop dequeues the next result, blocking while the queue is empty. ok is
// false once the queue is closed and drained, or when ctx is done.
func (q *Queue) Pop(ctx context.Context) (event.Result, bool) {
	select {
	case r := <-q.items:
		return r, true
	case <-ctx.Done():
		return event.Result{}, false
	case <-q.done:
	}

	// Pushes that started before Close have either landed or given up.
	q.pushers.Wait()
	select {
	case r := <-q.items:
		return r, true
	default:
		return event.Result{}, false
	}
}

// Close marks the end of the stream and returns without waiting. Results
// already accepted can still be popped; pushes blocked on a full queue fail
// with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Len reports how many results are buffered.
func (q *Queue) Len() int {
	return len(q.items)
}

// Cap reports the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.items)
}
