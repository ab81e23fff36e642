package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/recline/internal/ir"
)

// BlockableSource suspends and resumes regular-message delivery from one
// upstream connection. Implementations provide their own synchronization and
// guarantee that a block takes effect before any further message from that
// connection reaches the protocol.
type BlockableSource interface {
	Block(conn ir.Connection)
	Unblock(conn ir.Connection)
}

// Barrier is the coordinated, barrier-aligned checkpoint protocol of one instance.
//
// A round starts with the first barrier after the previous checkpoint. Each
// upstream connection that delivers its barrier is blocked until barriers have
// arrived on every connection (every shard of every upstream vertex); then the
// instance checkpoints, unblocks everything blocked this round and the barrier
// propagates downstream.
//
// Thread-safety: owned by the instance's single processing goroutine.
type Barrier struct {
	self     string
	expected map[ir.Connection]bool
	source   BlockableSource
	cp       *Checkpointer

	arrived map[ir.Connection]bool
	blocked []ir.Connection
	rounds  int
}

// NewBarrier creates the protocol for self. upstream lists every configured
// upstream connection; an empty list makes the instance a source.
func NewBarrier(self string, upstream []ir.Connection, source BlockableSource, cp *Checkpointer) *Barrier {
	expected := make(map[ir.Connection]bool, len(upstream))
	for _, c := range upstream {
		expected[c] = true
	}
	return &Barrier{
		self:     self,
		expected: expected,
		source:   source,
		cp:       cp,
		arrived:  make(map[ir.Connection]bool, len(upstream)),
	}
}

// IsSource reports whether the instance has no upstream connections.
func (b *Barrier) IsSource() bool {
	return len(b.expected) == 0
}

// Rounds returns the number of completed rounds.
func (b *Barrier) Rounds() int {
	return b.rounds
}

// Pending returns the connections still awaiting a barrier this round, sorted.
func (b *Barrier) Pending() []ir.Connection {
	var out []ir.Connection
	for c := range b.expected {
		if !b.arrived[c] {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Vertex != out[j].Vertex {
			return out[i].Vertex < out[j].Vertex
		}
		return out[i].Shard < out[j].Shard
	})
	return out
}

// ReceiveBarrier handles a barrier that arrived on conn. It returns true when
// the instance checkpointed and the barrier must be forwarded downstream.
//
// Sources ignore conn, checkpoint on every call and never block.
func (b *Barrier) ReceiveBarrier(ctx context.Context, conn ir.Connection) (bool, error) {
	if b.IsSource() {
		if err := b.checkpoint(ctx); err != nil {
			return false, err
		}
		return true, nil
	}

	if !b.expected[conn] {
		return false, newConfigError(ErrCodeUnknownConnection, b.self,
			"barrier from unconfigured upstream connection %s", conn)
	}

	if b.arrived[conn] {
		// Already blocked this round; the source should not have delivered it.
		slog.Warn("duplicate barrier in round",
			"instance", b.self,
			"connection", conn.String(),
			"round", b.rounds,
		)
		return false, nil
	}

	if len(b.arrived)+1 < len(b.expected) {
		b.arrived[conn] = true
		b.source.Block(conn)
		b.blocked = append(b.blocked, conn)
		barrierBlocks.Inc()
		slog.Debug("barrier aligned connection",
			"instance", b.self,
			"connection", conn.String(),
			"pending", len(b.expected)-len(b.arrived),
		)
		return false, nil
	}

	// The last barrier counts only once the checkpoint exists; a failed
	// attempt leaves the round open so a redelivery retries it.
	if err := b.checkpoint(ctx); err != nil {
		return false, err
	}
	for _, c := range b.blocked {
		b.source.Unblock(c)
	}
	b.blocked = b.blocked[:0]
	clear(b.arrived)
	return true, nil
}

func (b *Barrier) checkpoint(ctx context.Context) error {
	rec, err := b.cp.Take(ctx, false)
	if err != nil {
		return fmt.Errorf("barrier round %d: %w", b.rounds, err)
	}
	b.rounds++
	slog.Info("coordinated checkpoint",
		"instance", b.self,
		"checkpoint_id", rec.ID,
		"round", b.rounds,
	)
	return nil
}
