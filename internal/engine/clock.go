package engine

import "sync/atomic"

// Clock is the monotonic logical clock that numbers dispatches.
//
// Every dispatched event is stamped with a strictly increasing sequence number
// that keeps growing across years, so (seq) alone orders the whole run. Wall
// time is never used for ordering.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations), though
// only the scheduler loop calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
