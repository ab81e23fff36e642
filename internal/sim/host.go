package sim

import (
	"sync"

	"github.com/roach88/recline/internal/ir"
	"github.com/roach88/recline/internal/protocol"
)

// Host is one simulated instance: its checkpointer, the active protocol and
// the set of upstream connections the barrier protocol has blocked.
type Host struct {
	name string
	conn ir.Connection

	cp       *protocol.Checkpointer
	barrier  *protocol.Barrier
	cic      *protocol.CIC
	interval *protocol.Interval

	mu      sync.Mutex
	blocked map[ir.Connection]bool

	restoredTo string
}

// Block implements protocol.BlockableSource.
func (h *Host) Block(c ir.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blocked[c] = true
}

// Unblock implements protocol.BlockableSource.
func (h *Host) Unblock(c ir.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.blocked, c)
}

// IsBlocked reports whether delivery from c is suspended.
func (h *Host) IsBlocked(c ir.Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.blocked[c]
}

// Checkpoints returns how many checkpoints the host has taken.
func (h *Host) Checkpoints() int {
	return h.cp.Taken()
}

// CurrentCheckpoint returns the identifier of the host's latest checkpoint.
func (h *Host) CurrentCheckpoint() string {
	return h.cp.Current()
}

// RestoredTo returns the checkpoint the host was last told to restore, if any.
func (h *Host) RestoredTo() string {
	return h.restoredTo
}
