package coordinator

import "sync/atomic"

// Clock numbers recovery episodes.
//
// Every failure episode gets a strictly increasing seq. Episodes are
// ordered by seq, never by wall time, and a restarted coordinator resumes
// from the last persisted seq via NewClockAt.
//
// Thread-safety: safe for concurrent use, though only Run calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued seq.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
