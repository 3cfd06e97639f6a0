package testutil

import (
	"sync"
	"time"
)

// StepTime is a deterministic wall clock for tests. Each call to Now returns
// the previous value advanced by a fixed step, starting at start.
//
// Pass StepTime.Now wherever a component accepts a func() time.Time so that
// timestamps in stored rows and golden traces are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepTime struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	n     int64
}

// NewStepTime creates a StepTime. The first call to Now returns start.
func NewStepTime(start time.Time, step time.Duration) *StepTime {
	return &StepTime{start: start.UTC(), step: step}
}

// Now returns the next instant.
func (c *StepTime) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Peek returns the instant the next call to Now will return.
func (c *StepTime) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(time.Duration(c.n) * c.step)
}

// Reset rewinds the clock to start.
func (c *StepTime) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
