package ir

import (
	"fmt"
	"sort"
	"time"
)

// CheckpointRecord describes one checkpoint taken by one instance.
//
// Dependencies maps a direct upstream instance name to the checkpoint
// identifier that upstream instance had when its most recent message was
// delivered to Owner before this checkpoint. An upstream that never
// delivered anything has no entry.
type CheckpointRecord struct {
	ID           string            `json:"id"`
	Owner        string            `json:"owner"`
	Index        int               `json:"index"` // position in Owner's history, oldest first
	Dependencies map[string]string `json:"dependencies,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	Forced       bool              `json:"forced,omitempty"`
}

// DependencyOn returns the recorded dependency on the given upstream.
func (r CheckpointRecord) DependencyOn(upstream string) (string, bool) {
	id, ok := r.Dependencies[upstream]
	return id, ok
}

// Clone returns a deep copy so callers can never alias a published record's map.
func (r CheckpointRecord) Clone() CheckpointRecord {
	out := r
	if r.Dependencies != nil {
		out.Dependencies = make(map[string]string, len(r.Dependencies))
		for k, v := range r.Dependencies {
			out.Dependencies[k] = v
		}
	}
	return out
}

// Connection identifies one upstream connection: a vertex and one of its shards.
type Connection struct {
	Vertex string `json:"vertex"`
	Shard  int    `json:"shard"`
}

func (c Connection) String() string {
	return fmt.Sprintf("%s/%d", c.Vertex, c.Shard)
}

// InstanceName returns the instance name for shard of a vertex with the given shard count.
// Single-shard vertices use the bare vertex name.
func InstanceName(vertex string, shard, shards int) string {
	if shards <= 1 {
		return vertex
	}
	return fmt.Sprintf("%s#%d", vertex, shard)
}

// NoRollback marks an instance that keeps its current runtime state.
const NoRollback = ""

// RecoveryLine is the result of one recovery-line computation.
type RecoveryLine struct {
	Coordinated bool `json:"coordinated"`

	// RecoveryMap has one entry per instance: a checkpoint ID or NoRollback.
	RecoveryMap map[string]string `json:"recovery_map"`

	// AffectedInstances lists instances mapped to a checkpoint, sorted.
	AffectedInstances []string `json:"affected_instances"`
}

// Target returns the checkpoint an instance restores, or false if it keeps its state.
func (l RecoveryLine) Target(instance string) (string, bool) {
	id, ok := l.RecoveryMap[instance]
	if !ok || id == NoRollback {
		return "", false
	}
	return id, true
}

// IsAffected reports whether the instance rolls back.
func (l RecoveryLine) IsAffected(instance string) bool {
	_, ok := l.Target(instance)
	return ok
}

// Instructions derives one restore instruction per affected instance, sorted by instance.
func (l RecoveryLine) Instructions() []RestoreInstruction {
	out := make([]RestoreInstruction, 0, len(l.AffectedInstances))
	for _, name := range l.AffectedInstances {
		if id, ok := l.Target(name); ok {
			out = append(out, RestoreInstruction{Instance: name, CheckpointID: id})
		}
	}
	return out
}

// NewRecoveryLine builds a line from a recovery map, deriving AffectedInstances.
func NewRecoveryLine(coordinated bool, recoveryMap map[string]string) RecoveryLine {
	affected := make([]string, 0, len(recoveryMap))
	for name, id := range recoveryMap {
		if id != NoRollback {
			affected = append(affected, name)
		}
	}
	sort.Strings(affected)
	return RecoveryLine{
		Coordinated:       coordinated,
		RecoveryMap:       recoveryMap,
		AffectedInstances: affected,
	}
}

// RestoreInstruction tells one instance's host runtime which checkpoint to load.
type RestoreInstruction struct {
	Instance     string `json:"instance"`
	CheckpointID string `json:"checkpoint_id"`
}

// Episode is one handled failure: the failed set, the computed line and a
// coordinator-assigned sequence number.
type Episode struct {
	Seq       int64        `json:"seq"`
	Failed    []string     `json:"failed"`
	Line      RecoveryLine `json:"line"`
	CreatedAt time.Time    `json:"created_at"`
}
