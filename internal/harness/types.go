package harness

import (
	"sort"

	"github.com/roach88/recline/internal/ir"
)

// NoRollbackMarker stands for ir.NoRollback in scenarios and traces.
const NoRollbackMarker = "-"

// Trace event types.
const (
	EventCheckpoint = "checkpoint"
	EventRecovery   = "recovery"
)

// TraceEvent is one step of a scenario run. Exactly one of Checkpoint and
// Recovery is set, matching Type.
type TraceEvent struct {
	Type       string           `json:"type"`
	Seq        int64            `json:"seq"`
	Checkpoint *CheckpointTrace `json:"checkpoint,omitempty"`
	Recovery   *RecoveryTrace   `json:"recovery,omitempty"`
}

// CheckpointTrace is a checkpoint record as read back from the store.
type CheckpointTrace struct {
	ID           string            `json:"id"`
	Owner        string            `json:"owner"`
	Index        int               `json:"index"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Forced       bool              `json:"forced,omitempty"`
}

// RecoveryTrace is the outcome of one recover case.
type RecoveryTrace struct {
	Failed      []string          `json:"failed"`
	Coordinated bool              `json:"coordinated"`
	RecoveryMap map[string]string `json:"recovery_map,omitempty"`
	Affected    []string          `json:"affected,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// TraceSnapshot is what golden files hold.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every recover case met its expectation.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records an expectation failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddCheckpointTrace appends a checkpoint event.
func (r *Result) AddCheckpointTrace(rec ir.CheckpointRecord) {
	r.Trace = append(r.Trace, TraceEvent{
		Type: EventCheckpoint,
		Seq:  int64(len(r.Trace) + 1),
		Checkpoint: &CheckpointTrace{
			ID:           rec.ID,
			Owner:        rec.Owner,
			Index:        rec.Index,
			Dependencies: rec.Dependencies,
			Forced:       rec.Forced,
		},
	})
}

// AddRecoveryTrace appends a recover-case event. NoRollback entries are
// rendered as NoRollbackMarker.
func (r *Result) AddRecoveryTrace(failed []string, coordinated bool, line *ir.RecoveryLine, code string) int64 {
	names := append([]string{}, failed...)
	sort.Strings(names)

	rt := &RecoveryTrace{Failed: names, Coordinated: coordinated, Error: code}
	if line != nil {
		rt.RecoveryMap = make(map[string]string, len(line.RecoveryMap))
		for inst, id := range line.RecoveryMap {
			if id == ir.NoRollback {
				id = NoRollbackMarker
			}
			rt.RecoveryMap[inst] = id
		}
		rt.Affected = line.AffectedInstances
	}

	seq := int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, TraceEvent{Type: EventRecovery, Seq: seq, Recovery: rt})
	return seq
}
