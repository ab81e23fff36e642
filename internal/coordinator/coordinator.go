package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/recline/internal/ir"
	"github.com/roach88/recline/internal/recovery"
	"github.com/roach88/recline/internal/store"
	"github.com/roach88/recline/internal/topology"
)

// ErrStopped is returned by HandleFailure once the coordinator no longer
// accepts events.
var ErrStopped = errors.New("coordinator stopped")

// Dispatcher delivers restore instructions to instance host runtimes.
type Dispatcher interface {
	Restore(ctx context.Context, in ir.RestoreInstruction) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, in ir.RestoreInstruction) error

// Restore implements Dispatcher.
func (f DispatcherFunc) Restore(ctx context.Context, in ir.RestoreInstruction) error {
	return f(ctx, in)
}

// Coordinator is the single-writer loop that owns checkpoint metadata.
//
// Instances publish CheckpointRecords through Notify; failure reports go
// through HandleFailure. Both land in one FIFO queue, so a failure episode
// sees every notification enqueued before it and episodes never interleave.
//
// Thread-safety model:
//   - Notify, HandleFailure, Stop: safe from any goroutine
//   - Replay: before Run, from the goroutine that will call Run
//   - Run: exactly one goroutine
type Coordinator struct {
	store      *store.Store
	graph      *topology.Graph
	kind       ir.ProtocolKind
	history    *recovery.History
	queue      *eventQueue
	clock      *Clock
	dispatcher Dispatcher
	now        func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDispatcher sets where restore instructions go. Without one, episodes
// are computed and persisted but nothing is dispatched.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Coordinator) {
		c.dispatcher = d
	}
}

// WithNow overrides the wall clock used for episode timestamps.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithClock sets the episode clock. Replay replaces it.
func WithClock(clock *Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// New creates a Coordinator for a deployment running the given protocol.
func New(s *store.Store, graph *topology.Graph, kind ir.ProtocolKind, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   s,
		graph:   graph,
		kind:    kind,
		history: recovery.NewHistory(),
		queue:   newEventQueue(),
		clock:   NewClock(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Replay loads persisted checkpoint records into memory and resumes the
// episode clock after the last persisted episode.
func (c *Coordinator) Replay(ctx context.Context) error {
	recs, err := c.store.ReadCheckpoints(ctx)
	if err != nil {
		return fmt.Errorf("replay checkpoints: %w", err)
	}
	h, err := recovery.BuildHistory(recs)
	if err != nil {
		return fmt.Errorf("replay checkpoints: %w", err)
	}
	last, err := c.store.LastEpisodeSeq(ctx)
	if err != nil {
		return fmt.Errorf("replay episodes: %w", err)
	}

	c.history = h
	c.clock = NewClockAt(last)
	slog.Info("coordinator replayed",
		"checkpoints", h.Total(),
		"owners", len(h.Owners()),
		"last_episode", last,
	)
	return nil
}

// Notify enqueues a checkpoint-taken notification. It implements
// protocol.Notifier and never blocks. Returns false after Stop.
func (c *Coordinator) Notify(rec ir.CheckpointRecord) bool {
	rec = rec.Clone()
	return c.queue.Enqueue(Event{Type: EventTypeCheckpoint, Checkpoint: &rec})
}

// HandleFailure reports failed instances and waits for the resulting episode.
// The recovery line has already been persisted and dispatched when it returns.
func (c *Coordinator) HandleFailure(ctx context.Context, failed []string) (ir.Episode, error) {
	req := &failureRequest{
		failed: append([]string(nil), failed...),
		reply:  make(chan failureResult, 1),
	}
	if !c.queue.Enqueue(Event{Type: EventTypeFailure, failure: req}) {
		return ir.Episode{}, ErrStopped
	}

	select {
	case <-ctx.Done():
		return ir.Episode{}, ctx.Err()
	case res := <-req.reply:
		return res.episode, res.err
	}
}

// Run starts the single-writer event loop.
// Blocks until the context is cancelled or Stop is called and the queue drained.
//
// A checkpoint notification that cannot be recorded is logged and skipped;
// the next failure episode then reports the gap as a contract violation.
func (c *Coordinator) Run(ctx context.Context) error {
	slog.Info("coordinator starting", "protocol", string(c.kind))

	for {
		event, ok := c.queue.TryDequeue()
		if ok {
			if err := c.processEvent(ctx, event); err != nil {
				logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("coordinator stopping: context cancelled")
			c.queue.Close()
			c.failPending(ctx.Err())
			return ctx.Err()

		case <-c.queue.Wait():
			// The signal channel closes with the queue.
			if c.queue.Len() == 0 && c.queue.Closed() {
				slog.Info("coordinator stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop stops accepting events. Run returns after draining what was queued.
func (c *Coordinator) Stop() {
	c.queue.Close()
}

// failPending answers queued failure requests after cancellation.
func (c *Coordinator) failPending(err error) {
	for {
		event, ok := c.queue.TryDequeue()
		if !ok {
			return
		}
		if event.failure != nil {
			event.failure.reply <- failureResult{err: err}
		}
	}
}

// processEvent routes an event to its handler.
// Called only from the Run goroutine.
func (c *Coordinator) processEvent(ctx context.Context, event Event) error {
	switch event.Type {
	case EventTypeCheckpoint:
		if event.Checkpoint == nil {
			return fmt.Errorf("checkpoint event missing record")
		}
		return c.processCheckpoint(ctx, *event.Checkpoint)

	case EventTypeFailure:
		if event.failure == nil {
			return fmt.Errorf("failure event missing request")
		}
		ep, err := c.processFailure(ctx, event.failure.failed)
		event.failure.reply <- failureResult{episode: ep, err: err}
		return err

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

func (c *Coordinator) processCheckpoint(ctx context.Context, rec ir.CheckpointRecord) error {
	if _, seen := c.history.Lookup(rec.ID); seen {
		checkpointsRecorded.WithLabelValues("duplicate").Inc()
		slog.Debug("duplicate checkpoint notification", "checkpoint_id", rec.ID)
		return nil
	}
	// The history only holds records that reached the store, so a restart
	// replays exactly what recovery lines were computed from.
	if err := c.history.Check(rec); err != nil {
		checkpointsRecorded.WithLabelValues("error").Inc()
		return fmt.Errorf("record checkpoint %s: %w", rec.ID, err)
	}
	if _, err := c.store.WriteCheckpoint(ctx, rec); err != nil {
		checkpointsRecorded.WithLabelValues("error").Inc()
		return err
	}
	if err := c.history.Append(rec); err != nil {
		checkpointsRecorded.WithLabelValues("error").Inc()
		return fmt.Errorf("record checkpoint %s: %w", rec.ID, err)
	}

	checkpointsRecorded.WithLabelValues("recorded").Inc()
	slog.Debug("checkpoint recorded",
		"checkpoint_id", rec.ID,
		"owner", rec.Owner,
		"index", rec.Index,
		"forced", rec.Forced,
	)
	return nil
}

func (c *Coordinator) processFailure(ctx context.Context, failed []string) (ir.Episode, error) {
	coordinated := c.kind.Coordinated()
	mode := "independent"
	if coordinated {
		mode = "coordinated"
	}

	calc, err := recovery.NewCalculator(c.history, c.graph)
	if err != nil {
		episodes.WithLabelValues(mode, "error").Inc()
		return ir.Episode{}, fmt.Errorf("recovery input: %w", err)
	}
	line, err := calc.CalculateRecoveryLine(coordinated, failed)
	if err != nil {
		episodes.WithLabelValues(mode, "error").Inc()
		return ir.Episode{}, fmt.Errorf("recovery line: %w", err)
	}

	sorted := append([]string{}, failed...)
	sort.Strings(sorted)
	ep := ir.Episode{
		Seq:       c.clock.Next(),
		Failed:    sorted,
		Line:      line,
		CreatedAt: c.now().UTC(),
	}
	if err := c.store.WriteEpisode(ctx, ep); err != nil {
		episodes.WithLabelValues(mode, "error").Inc()
		return ir.Episode{}, err
	}

	episodes.WithLabelValues(mode, "ok").Inc()
	affectedInstances.Observe(float64(len(line.AffectedInstances)))
	slog.Info("recovery line computed",
		"seq", ep.Seq,
		"mode", mode,
		"failed", sorted,
		"affected", line.AffectedInstances,
	)

	if err := c.dispatch(ctx, line); err != nil {
		return ep, err
	}
	return ep, nil
}

// dispatch sends one instruction per affected instance. Every instruction is
// attempted; failures are joined.
func (c *Coordinator) dispatch(ctx context.Context, line ir.RecoveryLine) error {
	if c.dispatcher == nil {
		return nil
	}
	var errs []error
	for _, in := range line.Instructions() {
		if err := c.dispatcher.Restore(ctx, in); err != nil {
			restoreFailures.Inc()
			slog.Error("restore dispatch failed",
				"instance", in.Instance,
				"checkpoint_id", in.CheckpointID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("restore %s to %s: %w", in.Instance, in.CheckpointID, err))
		}
	}
	return errors.Join(errs...)
}

// logEventError logs a processing failure with the event's details.
func logEventError(event Event, err error) {
	switch event.Type {
	case EventTypeCheckpoint:
		if event.Checkpoint != nil {
			slog.Error("checkpoint processing failed",
				"error", err,
				"checkpoint_id", event.Checkpoint.ID,
				"owner", event.Checkpoint.Owner,
				"index", event.Checkpoint.Index,
			)
			return
		}
	case EventTypeFailure:
		if event.failure != nil {
			slog.Error("failure episode failed",
				"error", err,
				"failed", event.failure.failed,
			)
			return
		}
	}
	slog.Error("event processing failed",
		"error", err,
		"event_type", event.Type.String(),
	)
}
