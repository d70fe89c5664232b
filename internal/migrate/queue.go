package migrate

import (
	"context"
	"sync/atomic"
)

// BoundedQueue is a bounded, multi-producer multi-consumer FIFO with
// blocking send and receive and a single closure point: the producer side
// calls Release once its last active worker exits, after which Receive
// drains whatever remains and then reports closed.
type BoundedQueue[T any] struct {
	ch       chan T
	released atomic.Bool
}

// NewBoundedQueue allocates a queue of the given capacity.
func NewBoundedQueue[T any](capacity int) *BoundedQueue[T] {
	return &BoundedQueue[T]{ch: make(chan T, capacity)}
}

// Send blocks while the queue is full. It returns ErrQueueClosed if the
// queue has already been released (the Receive side will no longer look at
// new items; this happens only when a producer sends after all sibling
// producers already released, which is a programming error the caller
// should treat as a terminal shutdown condition, not retry), or ctx.Err()
// if ctx is cancelled first. The ctx case is what lets a worker blocked on
// a full downstream queue unstick itself when some other stage fails fatally
// downstream of it: every Spawn*Stage is run under the engine's shared
// errgroup context, so a sibling worker's non-nil return cancels it, which
// this select observes directly instead of hanging until someone closes the
// channel it is blocked on.
func (q *BoundedQueue[T]) Send(ctx context.Context, item T) error {
	if q.released.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks while the queue is empty. It returns (zero, false) once the
// queue has been released and fully drained, or once ctx is cancelled.
func (q *BoundedQueue[T]) Receive(ctx context.Context) (T, bool) {
	select {
	case item, ok := <-q.ch:
		return item, ok
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// Release marks the queue as closed for new sends and closes the underlying
// channel so blocked and future receivers drain remaining items and then
// observe closure. Release is idempotent.
func (q *BoundedQueue[T]) Release() {
	if q.released.CompareAndSwap(false, true) {
		close(q.ch)
	}
}

// Len reports the current queue depth. Best-effort: intended for monitoring
// only, not for synchronization.
func (q *BoundedQueue[T]) Len() int { return len(q.ch) }

// Released reports whether Release has been called. The monitor uses this
// together with Len to simulate a "weak reference": it holds a *BoundedQueue
// without itself being a producer or consumer, and treats Released()==true
// as the signal that the real reference-holders are gone, the Go analogue
// of the teacher's weak-reference-based quiescence check (see §9's
// sanctioned sentinel-channel alternative, and original_source/src/thread/
// monitor.rs's queue_length "dropped" distinction).
func (q *BoundedQueue[T]) Released() bool { return q.released.Load() }
