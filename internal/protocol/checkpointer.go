package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/recline/internal/ir"
)

// Storage is the external checkpoint storage service. It persists the
// snapshot bytes of an instance and returns the new checkpoint identifier.
// It either succeeds or returns an error; callers do not retry.
type Storage interface {
	TakeCheckpoint(ctx context.Context, instance string, forced bool) (string, error)
}

// Notifier receives checkpoint-taken notifications on their way to the
// coordinator's metadata store. Implementations must not retain or mutate
// the record's dependency map.
type Notifier interface {
	Notify(rec ir.CheckpointRecord) bool
}

// Checkpointer takes checkpoints for one instance and turns them into
// CheckpointRecords.
//
// It tracks, for every direct upstream instance, the checkpoint identifier
// stamped on the latest envelope delivered from it. A checkpoint snapshots
// that map as the record's Dependencies.
//
// Thread-safety: owned by the instance's single processing goroutine.
type Checkpointer struct {
	self     string
	kind     ir.ProtocolKind
	upstream map[string]bool
	storage  Storage
	notifier Notifier
	now      func() time.Time

	next    int
	current string
	seen    map[string]string
}

// CheckpointerOption configures a Checkpointer.
type CheckpointerOption func(*Checkpointer)

// WithNow overrides the wall clock used for CreatedAt.
func WithNow(now func() time.Time) CheckpointerOption {
	return func(c *Checkpointer) {
		c.now = now
	}
}

// WithNotifier sets where checkpoint-taken notifications go.
func WithNotifier(n Notifier) CheckpointerOption {
	return func(c *Checkpointer) {
		c.notifier = n
	}
}

// NewCheckpointer creates a Checkpointer for self with the given direct upstream instances.
func NewCheckpointer(self string, kind ir.ProtocolKind, upstream []string, storage Storage, opts ...CheckpointerOption) *Checkpointer {
	up := make(map[string]bool, len(upstream))
	for _, u := range upstream {
		up[u] = true
	}
	c := &Checkpointer{
		self:     self,
		kind:     kind,
		upstream: up,
		storage:  storage,
		now:      time.Now,
		seen:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Instance returns the owning instance name.
func (c *Checkpointer) Instance() string {
	return c.self
}

// Current returns the identifier of the latest checkpoint, or "" before the first.
func (c *Checkpointer) Current() string {
	return c.current
}

// Taken returns how many checkpoints this instance has taken.
func (c *Checkpointer) Taken() int {
	return c.next
}

// Observe records delivery of an envelope from a direct upstream instance
// stamped with that sender's current checkpoint identifier. An empty
// identifier means the sender has not checkpointed yet and is ignored.
func (c *Checkpointer) Observe(from, checkpointID string) error {
	if !c.upstream[from] {
		return newConfigError(ErrCodeUnknownConnection, c.self,
			"delivery from %q, which is not a direct upstream", from)
	}
	if checkpointID == "" {
		return nil
	}
	c.seen[from] = checkpointID
	return nil
}

// Take asks storage for a checkpoint, publishes the resulting record and returns it.
func (c *Checkpointer) Take(ctx context.Context, forced bool) (ir.CheckpointRecord, error) {
	id, err := c.storage.TakeCheckpoint(ctx, c.self, forced)
	if err != nil {
		return ir.CheckpointRecord{}, fmt.Errorf("take checkpoint for %s: %w", c.self, err)
	}

	var deps map[string]string
	if len(c.seen) > 0 {
		deps = make(map[string]string, len(c.seen))
		for k, v := range c.seen {
			deps[k] = v
		}
	}

	rec := ir.CheckpointRecord{
		ID:           id,
		Owner:        c.self,
		Index:        c.next,
		Dependencies: deps,
		CreatedAt:    c.now().UTC(),
		Forced:       forced,
	}
	c.next++
	c.current = id

	checkpointsTaken.WithLabelValues(string(c.kind), forcedLabel(forced)).Inc()
	slog.Debug("checkpoint taken",
		"instance", c.self,
		"checkpoint_id", id,
		"index", rec.Index,
		"forced", forced,
		"dependencies", len(deps),
	)

	if c.notifier != nil && !c.notifier.Notify(rec.Clone()) {
		slog.Warn("checkpoint notification dropped",
			"instance", c.self,
			"checkpoint_id", id,
		)
	}
	return rec, nil
}
