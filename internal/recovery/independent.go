package recovery

import (
	"log/slog"

	"github.com/roach88/recline/internal/ir"
)

// independent computes the line for autonomously taken checkpoints.
//
// Candidates are the failed instances plus everything forward-reachable from
// them. Each candidate starts at its latest record and is downgraded one
// record at a time while some dependency on another candidate is not strictly
// older than that candidate's assignment. Validity only gets harder as
// assignments drop, so sweeping until nothing changes yields the greatest
// consistent assignment.
func (c *Calculator) independent(failed []string) (ir.RecoveryLine, error) {
	for _, f := range failed {
		if !c.graph.Has(f) {
			return ir.RecoveryLine{}, contractErr(ErrCodeUnknownInstance, f,
				"failed instance is not in the graph")
		}
	}

	candidates := c.graph.Reachable(failed)
	order := sortedKeys(candidates)

	tentative := make(map[string]int, len(candidates))
	for _, inst := range order {
		tentative[inst] = c.history.Len(inst) - 1
	}

	for changed := true; changed; {
		changed = false
		for _, inst := range order {
			for !c.valid(inst, tentative, candidates) {
				if tentative[inst] == 0 {
					rec := c.history.at(inst, 0)
					return ir.RecoveryLine{}, contractErr(ErrCodeNoValidCheckpoint, inst,
						"oldest checkpoint %q still depends on rolled-back state", rec.ID)
				}
				tentative[inst]--
				changed = true
				downgrades.Inc()
				slog.Debug("recovery candidate downgraded",
					"instance", inst,
					"checkpoint_id", c.history.at(inst, tentative[inst]).ID,
					"index", tentative[inst],
				)
			}
		}
	}

	return c.lineFromIndices(false, tentative), nil
}

// valid reports whether inst's tentative record only depends on candidate
// states strictly older than what those candidates will be restored to.
func (c *Calculator) valid(inst string, tentative map[string]int, candidates map[string]bool) bool {
	rec := c.history.at(inst, tentative[inst])
	for up, id := range rec.Dependencies {
		if !candidates[up] {
			continue
		}
		if c.history.byID[id].Index >= tentative[up] {
			return false
		}
	}
	return true
}
