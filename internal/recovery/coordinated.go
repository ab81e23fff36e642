package recovery

import (
	"log/slog"

	"github.com/roach88/recline/internal/ir"
)

// coordinated computes the line for barrier-aligned checkpoints.
//
// Round r is the set of records with Index r. The search starts at the most
// recent round every instance completed and steps all instances back together
// until, for every edge A -> B, B's dependency on A in round r is A's own
// record of round r. A record with no dependency on A (nothing delivered from
// A yet) does not contradict the round.
func (c *Calculator) coordinated() (ir.RecoveryLine, error) {
	instances := c.graph.Instances()

	latest := -1
	for _, inst := range instances {
		n := c.history.Len(inst) - 1
		if latest < 0 || n < latest {
			latest = n
		}
	}

	for r := latest; r >= 0; r-- {
		if bad, ok := c.roundConsistent(r); !ok {
			slog.Debug("coordinated round rejected",
				"round", r,
				"edge_from", bad[0],
				"edge_to", bad[1],
			)
			continue
		}
		chosen := make(map[string]int, len(instances))
		for _, inst := range instances {
			chosen[inst] = r
		}
		return c.lineFromIndices(true, chosen), nil
	}

	return ir.RecoveryLine{}, contractErr(ErrCodeNoConsistentRound, "",
		"no complete, consistent round among %d instances", len(instances))
}

// roundConsistent checks every edge at round r and returns the first
// offending edge when the round is inconsistent.
func (c *Calculator) roundConsistent(r int) ([2]string, bool) {
	for _, e := range c.graph.Edges() {
		from, to := e[0], e[1]
		dep, ok := c.history.at(to, r).DependencyOn(from)
		if !ok {
			continue
		}
		if dep != c.history.at(from, r).ID {
			return e, false
		}
	}
	return [2]string{}, true
}
