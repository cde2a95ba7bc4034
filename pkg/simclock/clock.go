// Package simclock provides a dilatable simulated clock. The current simulated
// time is derived lazily from a base anchor, the elapsed wall time and a speed
// multiplier, so there is no background ticking goroutine: reading the clock
// twice at the same wall instant always yields the same simulated time.
package simclock

import (
	"fmt"
	"sync"
	"time"
)

// Clock derives simulated time from wall time.
type Clock struct {
	mu         sync.Mutex
	now        func() time.Time // wall clock source, injectable for tests
	base       time.Time        // simulated time at the last rebase
	anchor     time.Time        // wall time at the last rebase
	multiplier float64
	paused     bool
}

// New creates a clock starting at the given simulated time, running at 1x.
func New(start time.Time) *Clock {
	return NewWithSource(start, time.Now)
}

// NewWithSource creates a clock with an explicit wall-time source.
func NewWithSource(start time.Time, now func() time.Time) *Clock {
	return &Clock{
		now:        now,
		base:       start,
		anchor:     now(),
		multiplier: 1,
	}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *Clock) nowLocked() time.Time {
	if c.paused || c.multiplier == 0 {
		return c.base
	}
	elapsed := c.now().Sub(c.anchor)
	return c.base.Add(time.Duration(float64(elapsed) * c.multiplier))
}

// Set moves the clock to an explicit simulated time, keeping the current
// multiplier and pause state.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = t
	c.anchor = c.now()
}

// SetMultiplier changes the dilation factor. Factor 0 freezes time advance.
// The clock is rebased first so already-elapsed simulated time is preserved.
func (c *Clock) SetMultiplier(f float64) error {
	if f < 0 {
		return fmt.Errorf("time multiplier must be >= 0, got %v", f)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = c.nowLocked()
	c.anchor = c.now()
	c.multiplier = f
	return nil
}

// Pause freezes the clock at its current simulated time.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.base = c.nowLocked()
	c.paused = true
}

// Resume unfreezes the clock.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.anchor = c.now()
	c.paused = false
}

// Paused reports whether the clock is frozen.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Multiplier returns the current dilation factor.
func (c *Clock) Multiplier() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multiplier
}
