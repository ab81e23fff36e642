package protocol

import (
	"context"
	"log/slog"
	"sort"

	"github.com/roach88/recline/internal/ir"
)

// CIC is the communication-induced checkpoint protocol of one instance.
//
// Every instance keeps three vectors over the agreed instance ordering:
//
//	clock  causal event counters
//	ckpt   highest known checkpoint round of every instance
//	taken  taken[k] is true when a checkpoint lies on a causal path
//	       since round ckpt[k] of instance k became known
//
// plus a local sent[] bitmap of peers sent to since the last checkpoint,
// which never travels.
//
// A message forces a checkpoint before delivery when this instance has sent
// something in its current interval and the message carries this instance's
// own current round with taken set: the causal path left the interval,
// crossed a checkpoint elsewhere and came back, so without a new checkpoint
// the last local one would sit on a Z-cycle. A sender can only know the
// receiver's current round through a path from the receiver, so causality
// that flows along an acyclic graph (DAG joins included) never forces.
//
// Thread-safety: owned by the instance's single processing goroutine.
type CIC struct {
	cp *Checkpointer

	names []string
	index map[string]int
	self  int

	clock vec
	ckpt  vec
	taken []bool
	sent  []bool

	initialized bool
}

// NewCIC creates an uninitialized protocol that checkpoints through cp.
func NewCIC(cp *Checkpointer) *CIC {
	return &CIC{cp: cp}
}

// InitializeClocks fixes the instance ordering (names sorted) and zeroes every vector.
func (c *CIC) InitializeClocks(self string, all []string) error {
	names := append([]string{}, all...)
	sort.Strings(names)

	index := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := index[n]; dup {
			return newConfigError(ErrCodeDuplicateInstance, self, "instance %q listed twice", n)
		}
		index[n] = i
	}
	pos, ok := index[self]
	if !ok {
		return newConfigError(ErrCodeUnknownInstance, self, "self is not in the instance set")
	}

	c.names = names
	c.index = index
	c.self = pos
	c.clock = make(vec, len(names))
	c.ckpt = make(vec, len(names))
	c.taken = make([]bool, len(names))
	c.sent = make([]bool, len(names))
	c.initialized = true
	return nil
}

// Instances returns the agreed ordering.
func (c *CIC) Instances() []string {
	return c.names
}

// Round returns this instance's own checkpoint round.
func (c *CIC) Round() int64 {
	if !c.initialized {
		return 0
	}
	return c.ckpt[c.self]
}

// BeforeCheckpoint opens a local checkpoint. Vector state does not change
// until AfterCheckpoint.
func (c *CIC) BeforeCheckpoint() {}

// AfterCheckpoint closes a local checkpoint: the own round advances, every
// known round gets a checkpoint after it and nothing has been sent yet.
func (c *CIC) AfterCheckpoint() {
	if !c.initialized {
		return
	}
	c.ckpt[c.self]++
	c.clock[c.self]++
	for k := range c.taken {
		c.taken[k] = k != c.self && c.ckpt[k] > 0
		c.sent[k] = false
	}
}

// BeforeSend records that a message is about to leave for target.
func (c *CIC) BeforeSend(target string) error {
	if !c.initialized {
		return newConfigError(ErrCodeNotInitialized, "", "BeforeSend before InitializeClocks")
	}
	k, ok := c.index[target]
	if !ok {
		return newConfigError(ErrCodeUnknownInstance, c.names[c.self], "send to unknown instance %q", target)
	}
	c.sent[k] = true
	c.clock[c.self]++
	return nil
}

// GetPiggybackData snapshots the vectors for an outgoing message.
func (c *CIC) GetPiggybackData() ir.CICPayload {
	return ir.CICPayload{
		Clock: c.clock.copy(),
		Ckpt:  c.ckpt.copy(),
		Taken: copyBools(c.taken),
	}
}

// CheckCheckpointCondition reports whether delivering a message from origin
// carrying p requires a forced checkpoint first.
func (c *CIC) CheckCheckpointCondition(origin string, p ir.CICPayload) (bool, error) {
	if err := c.validate(origin, p); err != nil {
		return false, err
	}

	force := c.sentSinceCheckpoint() &&
		p.Ckpt[c.self] == c.ckpt[c.self] &&
		p.Taken[c.self]

	if force {
		cicForcedChecks.WithLabelValues("forced").Inc()
		slog.Debug("cic condition forces checkpoint",
			"instance", c.names[c.self],
			"origin", origin,
			"round", c.ckpt[c.self],
		)
	} else {
		cicForcedChecks.WithLabelValues("clear").Inc()
	}
	return force, nil
}

// BeforeDeliver merges the piggybacked vectors of a message from origin.
// Call it after the condition has been checked and any forced checkpoint taken.
func (c *CIC) BeforeDeliver(origin string, p ir.CICPayload) error {
	if err := c.validate(origin, p); err != nil {
		return err
	}
	for k := range c.ckpt {
		switch {
		case p.Ckpt[k] > c.ckpt[k]:
			c.ckpt[k] = p.Ckpt[k]
			c.taken[k] = p.Taken[k]
		case p.Ckpt[k] == c.ckpt[k]:
			c.taken[k] = c.taken[k] || p.Taken[k]
		}
	}
	c.clock.max(p.Clock)
	c.clock[c.self]++
	return nil
}

// Checkpoint takes an unforced local checkpoint bracketed by the vector updates.
func (c *CIC) Checkpoint(ctx context.Context) (ir.CheckpointRecord, error) {
	return c.take(ctx, false)
}

// Receive runs the arrival path of a message from origin: condition check,
// forced checkpoint when required, then merge. It reports whether a
// checkpoint was forced.
func (c *CIC) Receive(ctx context.Context, origin string, p ir.CICPayload) (bool, error) {
	force, err := c.CheckCheckpointCondition(origin, p)
	if err != nil {
		return false, err
	}
	if force {
		if _, err := c.take(ctx, true); err != nil {
			return false, err
		}
	}
	return force, c.BeforeDeliver(origin, p)
}

func (c *CIC) take(ctx context.Context, forced bool) (ir.CheckpointRecord, error) {
	c.BeforeCheckpoint()
	rec, err := c.cp.Take(ctx, forced)
	if err != nil {
		return ir.CheckpointRecord{}, err
	}
	c.AfterCheckpoint()
	return rec, nil
}

func (c *CIC) sentSinceCheckpoint() bool {
	for _, s := range c.sent {
		if s {
			return true
		}
	}
	return false
}

func (c *CIC) validate(origin string, p ir.CICPayload) error {
	if !c.initialized {
		return newConfigError(ErrCodeNotInitialized, "", "message from %q before InitializeClocks", origin)
	}
	self := c.names[c.self]
	if _, ok := c.index[origin]; !ok {
		return newConfigError(ErrCodeUnknownInstance, self, "message from unknown instance %q", origin)
	}
	n := len(c.names)
	if len(p.Clock) != n || len(p.Ckpt) != n || len(p.Taken) != n {
		return newConfigError(ErrCodeVectorLength, self,
			"piggyback from %q has lengths clock=%d ckpt=%d taken=%d, want %d",
			origin, len(p.Clock), len(p.Ckpt), len(p.Taken), n)
	}
	return nil
}
