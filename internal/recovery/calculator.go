package recovery

import (
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/recline/internal/ir"
	"github.com/roach88/recline/internal/topology"
)

// Calculator computes recovery lines over an immutable history and graph.
//
// Construction validates the input contract once: every history owner is a
// graph instance and vice versa, indices are contiguous, and every dependency
// names a direct upstream instance and a checkpoint that instance owns.
// CalculateRecoveryLine can then be called any number of times.
type Calculator struct {
	graph   *topology.Graph
	history *History
}

// NewCalculator validates history against graph. The calculator keeps a
// snapshot, so later appends to history are not seen.
func NewCalculator(history *History, graph *topology.Graph) (*Calculator, error) {
	h := history.Snapshot()

	for _, owner := range h.Owners() {
		if !graph.Has(owner) {
			return nil, contractErr(ErrCodeUnknownInstance, owner,
				"checkpoint metadata for an instance that is not in the graph")
		}
	}
	for _, inst := range graph.Instances() {
		if h.Len(inst) == 0 {
			return nil, contractErr(ErrCodeMissingHistory, inst,
				"instance has never checkpointed")
		}
	}

	for _, owner := range h.Owners() {
		for _, rec := range h.byOwner[owner] {
			if err := checkDependencies(h, graph, rec); err != nil {
				return nil, err
			}
		}
	}

	return &Calculator{graph: graph, history: h}, nil
}

func checkDependencies(h *History, graph *topology.Graph, rec ir.CheckpointRecord) error {
	for up, id := range rec.Dependencies {
		if !graph.IsUpstream(up, rec.Owner) {
			return contractErr(ErrCodeUndeclaredDependency, rec.Owner,
				"checkpoint %q depends on %q, which has no edge into %s", rec.ID, up, rec.Owner)
		}
		dep, ok := h.byID[id]
		if !ok || dep.Owner != up {
			return contractErr(ErrCodeDanglingDependency, rec.Owner,
				"checkpoint %q depends on %q of %s, which is not in its history", rec.ID, id, up)
		}
	}
	return nil
}

// History returns the snapshot the calculator works on.
func (c *Calculator) History() *History {
	return c.history
}

// CalculateRecoveryLine computes the recovery line for a failure of the given
// instances. In coordinated mode failed is ignored and every instance rolls
// back to the most recent complete, consistent round. In independent mode only
// failed instances and everything forward-reachable from them roll back.
func (c *Calculator) CalculateRecoveryLine(coordinated bool, failed []string) (ir.RecoveryLine, error) {
	start := time.Now()
	mode := modeLabel(coordinated)

	var (
		line ir.RecoveryLine
		err  error
	)
	if coordinated {
		line, err = c.coordinated()
	} else {
		line, err = c.independent(failed)
	}

	calcDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err != nil {
		calculations.WithLabelValues(mode, "error").Inc()
		return ir.RecoveryLine{}, err
	}
	calculations.WithLabelValues(mode, "ok").Inc()

	slog.Debug("recovery line computed",
		"mode", mode,
		"failed", failed,
		"affected", len(line.AffectedInstances),
	)
	return line, nil
}

// lineFromIndices builds a RecoveryLine assigning chosen[inst] to every
// instance in chosen and NoRollback to every other graph instance.
func (c *Calculator) lineFromIndices(coordinated bool, chosen map[string]int) ir.RecoveryLine {
	rm := make(map[string]string, len(c.graph.Instances()))
	for _, inst := range c.graph.Instances() {
		idx, ok := chosen[inst]
		if !ok {
			rm[inst] = ir.NoRollback
			continue
		}
		rm[inst] = c.history.at(inst, idx).ID
	}
	return ir.NewRecoveryLine(coordinated, rm)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func modeLabel(coordinated bool) string {
	if coordinated {
		return "coordinated"
	}
	return "independent"
}
