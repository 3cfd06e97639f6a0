package engine

import (
	"sync/atomic"
	"time"
)

// Clock stamps queue entries with strictly increasing enqueuedAt values.
//
// A logical clock (NewClock, NewClockAt) simply counts. A wall clock
// (NewWallClock) returns max(previous+1, now in microseconds), so stamps stay
// close to real time while never repeating or going backwards, even if the
// system clock steps back.
//
// After a restart the clock must be seeded past every stamp already on disk
// (see Store.MaxEnqueuedAt), otherwise a new entry could sort before an old one.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq  atomic.Int64
	wall func() int64
}

// NewClock creates a logical clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a logical clock starting at a specific value.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// NewWallClock creates a clock that tracks wall time in microseconds and never
// returns a value <= start.
func NewWallClock(start int64) *Clock {
	c := &Clock{wall: func() int64 { return time.Now().UnixMicro() }}
	c.seq.Store(start)
	return c
}

// Next returns the next stamp.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	for {
		cur := c.seq.Load()
		next := cur + 1
		if c.wall != nil {
			if w := c.wall(); w > next {
				next = w
			}
		}
		if c.seq.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// Current returns the last stamp handed out without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Observe advances the clock to at least v.
func (c *Clock) Observe(v int64) {
	for {
		cur := c.seq.Load()
		if v <= cur || c.seq.CompareAndSwap(cur, v) {
			return
		}
	}
}
