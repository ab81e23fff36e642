package coordinator

import (
	"sync"

	"github.com/roach88/recline/internal/ir"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeCheckpoint carries a checkpoint-taken notification.
	EventTypeCheckpoint EventType = iota + 1
	// EventTypeFailure carries a failure report awaiting a recovery line.
	EventTypeFailure
)

func (t EventType) String() string {
	switch t {
	case EventTypeCheckpoint:
		return "checkpoint"
	case EventTypeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// failureRequest is a failure report plus the channel its episode goes back on.
type failureRequest struct {
	failed []string
	reply  chan failureResult
}

type failureResult struct {
	episode ir.Episode
	err     error
}

// Event wraps checkpoint notifications and failure reports for the queue.
type Event struct {
	Type       EventType
	Checkpoint *ir.CheckpointRecord
	failure    *failureRequest
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so protocol instances never block on Notify while
// the coordinator is busy computing a recovery line.
//
// Many goroutines enqueue (every instance notifies); only Run dequeues.
// A buffered signal channel lets Run wait with context cancellation.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
// Returns (Event{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]
	// Clear the slot so the backing array does not pin records.
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed once the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and wakes the waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
