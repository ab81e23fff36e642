package ir

import "fmt"

// ProtocolKind selects the checkpoint-triggering discipline of a deployment.
// Exactly one kind is active per deployment.
type ProtocolKind string

const (
	// ProtocolCoordinated is the barrier-based (Chandy-Lamport style) protocol.
	ProtocolCoordinated ProtocolKind = "coordinated"

	// ProtocolCIC is the communication-induced protocol.
	ProtocolCIC ProtocolKind = "cic"

	// ProtocolInterval triggers checkpoints on elapsed wall-clock time.
	ProtocolInterval ProtocolKind = "interval"
)

// Coordinated reports whether recovery must use coordinated mode.
func (k ProtocolKind) Coordinated() bool {
	return k == ProtocolCoordinated
}

// ParseProtocolKind validates a protocol name from configuration.
func ParseProtocolKind(s string) (ProtocolKind, error) {
	switch k := ProtocolKind(s); k {
	case ProtocolCoordinated, ProtocolCIC, ProtocolInterval:
		return k, nil
	default:
		return "", fmt.Errorf("unknown checkpoint protocol %q: must be one of coordinated, cic, interval", s)
	}
}

// EnvelopeKind distinguishes data messages from barriers.
type EnvelopeKind int

const (
	// EnvelopeData is an ordinary data-plane message.
	EnvelopeData EnvelopeKind = iota + 1
	// EnvelopeBarrier is a coordinated-round marker.
	EnvelopeBarrier
)

func (k EnvelopeKind) String() string {
	switch k {
	case EnvelopeData:
		return "data"
	case EnvelopeBarrier:
		return "barrier"
	default:
		return fmt.Sprintf("EnvelopeKind(%d)", int(k))
	}
}

// BarrierPayload is the piggyback of the coordinated protocol. It has no fields.
type BarrierPayload struct{}

// CICPayload is the piggyback of the communication-induced protocol: a snapshot
// of the sender's three vectors, indexed by the agreed instance ordering.
type CICPayload struct {
	Clock []int64 `json:"clock"`
	Ckpt  []int64 `json:"ckpt"`
	Taken []bool  `json:"taken"`
}

// Envelope is a message as seen by the checkpointing subsystem.
//
// The dispatcher stamps CheckpointID with the sender's current checkpoint
// identifier; receivers use it for dependency tracking.
type Envelope struct {
	From         string       `json:"from"`
	To           string       `json:"to"`
	Shard        int          `json:"shard"`
	Vertex       string       `json:"vertex"`
	Kind         EnvelopeKind `json:"kind"`
	CheckpointID string       `json:"checkpoint_id,omitempty"`
	TTL          int          `json:"ttl,omitempty"`
	CIC          *CICPayload  `json:"cic,omitempty"`
}

// Connection returns the upstream connection this envelope arrived on.
func (e Envelope) Connection() Connection {
	return Connection{Vertex: e.Vertex, Shard: e.Shard}
}
