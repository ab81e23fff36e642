package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/recline/internal/ir"
	"github.com/roach88/recline/internal/recovery"
	"github.com/roach88/recline/internal/store"
	"github.com/roach88/recline/internal/testutil"
	"github.com/roach88/recline/internal/topology"
)

// epoch is the manual clock's start; record timestamps never reach the trace.
var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness holds the per-scenario collaborators.
type Harness struct {
	store *store.Store
	graph *topology.Graph
	clock *testutil.ManualClock
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. The history goes through
// the store and the calculator reads it back, so a run also covers the
// persistence round trip. Successful recover cases are stored as episodes.
//
// An error is returned only when the scenario cannot run at all; failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	graph, err := topology.Build(scenario.Topology)
	if err != nil {
		return nil, fmt.Errorf("invalid topology: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store: st,
		graph: graph,
		clock: testutil.NewManualClock(epoch),
	}
	ctx := context.Background()
	result := NewResult()

	history, err := h.loadHistory(ctx, scenario.Checkpoints, result)
	if err != nil {
		return nil, err
	}

	// A contract violation in the history fails every case the same way.
	calc, calcErr := recovery.NewCalculator(history, graph)

	stored := 0
	for i, rc := range scenario.Recover {
		var (
			line ir.RecoveryLine
			err  = calcErr
		)
		if err == nil {
			line, err = calc.CalculateRecoveryLine(rc.Coordinated, rc.Failed)
		}

		code, err := contractCode(err)
		if err != nil {
			return nil, fmt.Errorf("recover[%d]: %w", i, err)
		}

		var seq int64
		if code != "" {
			seq = result.AddRecoveryTrace(rc.Failed, rc.Coordinated, nil, code)
		} else {
			seq = result.AddRecoveryTrace(rc.Failed, rc.Coordinated, &line, "")
		}

		for _, msg := range h.check(rc, line, code) {
			result.AddError(fmt.Sprintf("recover[%d]: %s", i, msg))
		}

		if code == "" {
			ep := ir.Episode{Seq: seq, Failed: sortedCopy(rc.Failed), Line: line, CreatedAt: h.clock.Advance(time.Second)}
			if err := st.WriteEpisode(ctx, ep); err != nil {
				return nil, fmt.Errorf("recover[%d]: %w", i, err)
			}
			stored++
		}
	}

	episodes, err := st.ReadEpisodes(ctx)
	if err != nil {
		return nil, err
	}
	if len(episodes) != stored {
		result.AddError(fmt.Sprintf("stored %d episodes, read back %d", stored, len(episodes)))
	}

	return result, nil
}

// loadHistory assigns per-owner indices, writes the records, reads them back
// and traces them in store order.
func (h *Harness) loadHistory(ctx context.Context, steps []CheckpointStep, result *Result) (*recovery.History, error) {
	next := make(map[string]int)
	recs := make([]ir.CheckpointRecord, 0, len(steps))
	for _, step := range steps {
		owner := topology.Normalize(step.Owner)
		recs = append(recs, ir.CheckpointRecord{
			ID:           step.ID,
			Owner:        owner,
			Index:        next[owner],
			Dependencies: step.Dependencies,
			CreatedAt:    h.clock.Advance(time.Second),
			Forced:       step.Forced,
		})
		next[owner]++
	}

	if err := h.store.WriteCheckpoints(ctx, recs); err != nil {
		return nil, fmt.Errorf("failed to write history: %w", err)
	}
	stored, err := h.store.ReadCheckpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	for _, rec := range stored {
		result.AddCheckpointTrace(rec)
	}

	history, err := recovery.BuildHistory(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to build history: %w", err)
	}
	return history, nil
}

// check compares one case's outcome with its expectation.
func (h *Harness) check(rc RecoverCase, line ir.RecoveryLine, code string) []string {
	var errs []string

	if rc.Error != "" {
		if code != rc.Error {
			got := code
			if got == "" {
				got = "success"
			}
			errs = append(errs, fmt.Sprintf("expected error %s, got %s", rc.Error, got))
		}
		return errs
	}
	if code != "" {
		return append(errs, fmt.Sprintf("expected success, got error %s", code))
	}

	for _, inst := range h.graph.Instances() {
		want, ok := rc.Expect[inst]
		if !ok || want == NoRollbackMarker {
			want = ir.NoRollback
		}
		if got := line.RecoveryMap[inst]; got != want {
			errs = append(errs, fmt.Sprintf("instance %s: expected %s, got %s", inst, display(want), display(got)))
		}
	}
	for inst := range rc.Expect {
		if !h.graph.Has(inst) {
			errs = append(errs, fmt.Sprintf("expect names unknown instance %s", inst))
		}
	}

	if len(rc.Affected) > 0 {
		want := sortedCopy(rc.Affected)
		if fmt.Sprint(want) != fmt.Sprint(line.AffectedInstances) {
			errs = append(errs, fmt.Sprintf("affected: expected %v, got %v", want, line.AffectedInstances))
		}
	}
	return errs
}

// contractCode extracts the code of a contract error. Nil maps to "";
// any other error is returned unchanged.
func contractCode(err error) (string, error) {
	if err == nil {
		return "", nil
	}
	var ce *recovery.ContractError
	if errors.As(err, &ce) {
		return string(ce.Code), nil
	}
	return "", err
}

func display(id string) string {
	if id == ir.NoRollback {
		return NoRollbackMarker
	}
	return id
}

func sortedCopy(names []string) []string {
	out := append([]string{}, names...)
	sort.Strings(out)
	return out
}
