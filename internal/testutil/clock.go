// Package testutil holds deterministic helpers shared by tests: a run
// clock that steps one day at a time and raw-row builders.
package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first run timestamp handed out by a RunClock built
// with a zero start.
var DefaultEpoch = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// RunClock hands out strictly increasing run timestamps, one step apart.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RunClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	n     int64
}

// NewRunClock creates a clock whose first Next() returns start. A zero
// start means DefaultEpoch; the step is one day.
func NewRunClock(start time.Time) *RunClock {
	if start.IsZero() {
		start = DefaultEpoch
	}
	return &RunClock{start: start.UTC(), step: 24 * time.Hour}
}

// Next advances the clock and returns the new run timestamp.
func (c *RunClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.at(c.n)
}

// Current returns the last timestamp handed out, or the zero time before
// the first Next().
func (c *RunClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == 0 {
		return time.Time{}
	}
	return c.at(c.n)
}

// Reset rewinds the clock. After Reset(), Next() returns the start again.
func (c *RunClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}

func (c *RunClock) at(n int64) time.Time {
	return c.start.Add(time.Duration(n-1) * c.step)
}
