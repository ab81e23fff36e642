package coordinator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recline/internal/ir"
)

func checkpointEvent(id string) Event {
	return Event{Type: EventTypeCheckpoint, Checkpoint: &ir.CheckpointRecord{ID: id}}
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()
	for _, id := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(checkpointEvent(id)))
	}

	for _, want := range []string{"A", "B", "C"} {
		e, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, e.Checkpoint.ID)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_WaitSignals(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(checkpointEvent("A"))
	q.Enqueue(checkpointEvent("B"))

	select {
	case <-q.Wait():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no signal after enqueue")
	}
	assert.Equal(t, 2, q.Len(), "signals coalesce, events do not")
}

func TestEventQueue_CloseWakesWaiter(t *testing.T) {
	q := newEventQueue()
	done := make(chan struct{})
	go func() {
		<-q.Wait()
		close(done)
	}()

	q.Close()
	q.Close() // idempotent

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("waiter not woken by close")
	}
	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(checkpointEvent("late")), "enqueue after close should return false")
}

func TestEventQueue_ThreadSafe(t *testing.T) {
	q := newEventQueue()
	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(checkpointEvent(fmt.Sprintf("%d-%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for {
		e, ok := q.TryDequeue()
		if !ok {
			break
		}
		seen[e.Checkpoint.ID] = true
	}
	assert.Len(t, seen, producers*perProducer)
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())

	resumed := NewClockAt(41)
	assert.Equal(t, int64(42), resumed.Next())
	assert.Equal(t, int64(42), resumed.Current())
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "checkpoint", EventTypeCheckpoint.String())
	assert.Equal(t, "failure", EventTypeFailure.String())
	assert.Equal(t, "unknown", EventType(99).String())
}
