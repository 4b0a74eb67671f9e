package engine

import (
	"sync"

	"github.com/roach88/ghostchat/internal/transport"
)

// updateQueue is a thread-safe FIFO of inbound updates.
//
// Polled updates and updates injected with Engine.Enqueue share the queue,
// so the Run loop handles them strictly one at a time in arrival order.
//
// The signal channel (buffered, size 1) coalesces wakeups for
// context-aware waiting.
type updateQueue struct {
	mu      sync.Mutex
	updates []transport.Update
	closed  bool
	signal  chan struct{}
}

func newUpdateQueue() *updateQueue {
	return &updateQueue{
		updates: make([]transport.Update, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds u to the back of the queue.
// Returns false if the queue is closed.
func (q *updateQueue) Enqueue(u transport.Update) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.updates = append(q.updates, u)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front update without blocking.
func (q *updateQueue) TryDequeue() (transport.Update, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.updates) == 0 {
		return transport.Update{}, false
	}
	u := q.updates[0]

	// Release the message pointers held by the backing array.
	q.updates[0] = transport.Update{}
	if len(q.updates) == 1 {
		q.updates = q.updates[:0]
	} else {
		q.updates = q.updates[1:]
	}
	return u, true
}

// Wait returns a channel that signals when updates may be available. It is
// closed by Close.
func (q *updateQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *updateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.updates)
}

// Close rejects further updates and wakes waiters. Queued updates can still
// be dequeued.
func (q *updateQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
