package protocol

import (
	"context"
	"time"

	"github.com/roach88/recline/internal/ir"
)

// Interval triggers checkpoints purely on elapsed wall-clock time.
type Interval struct {
	interval time.Duration
	last     time.Time
}

// NewInterval creates the protocol with last as the reference point.
func NewInterval(interval time.Duration, last time.Time) *Interval {
	return &Interval{interval: interval, last: last.UTC()}
}

// CheckCheckpointCondition is true iff now - last >= interval.
func (p *Interval) CheckCheckpointCondition(now time.Time) bool {
	return now.Sub(p.last) >= p.interval
}

// SetLastCheckpointUTC moves the reference point after any completed checkpoint.
func (p *Interval) SetLastCheckpointUTC(ts time.Time) {
	p.last = ts.UTC()
}

// LastCheckpointUTC returns the reference point.
func (p *Interval) LastCheckpointUTC() time.Time {
	return p.last
}

// Tick checkpoints through cp when the interval has elapsed at now.
// It returns the record and true when a checkpoint was taken.
func (p *Interval) Tick(ctx context.Context, now time.Time, cp *Checkpointer) (ir.CheckpointRecord, bool, error) {
	if !p.CheckCheckpointCondition(now) {
		return ir.CheckpointRecord{}, false, nil
	}
	rec, err := cp.Take(ctx, false)
	if err != nil {
		return ir.CheckpointRecord{}, false, err
	}
	p.SetLastCheckpointUTC(now)
	return rec, true, nil
}
