// Package simulation drives a State tick by tick and fans results out to sinks.
package simulation

import (
	"context"
	"time"

	"github.com/pthm-cable/radiate/systems"
)

// Clock supplies the time passed to each Advance.
type Clock interface {
	Now() time.Time
	// Wait blocks until the next tick is due and moves Now forward.
	Wait(ctx context.Context) error
}

// LogicalClock steps a fixed interval per tick without sleeping.
type LogicalClock struct {
	now  time.Time
	step time.Duration
}

// NewLogicalClock starts at start and advances by step on every Wait.
func NewLogicalClock(start time.Time, step time.Duration) *LogicalClock {
	return &LogicalClock{now: start, step: step}
}

// Now returns the current logical time.
func (c *LogicalClock) Now() time.Time { return c.now }

// Wait advances the clock by one step.
func (c *LogicalClock) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(c.step)
	return nil
}

// WallClock paces ticks against real time.
type WallClock struct {
	ticker *time.Ticker
	now    time.Time
}

// NewWallClock ticks every interval. Call Stop when done.
func NewWallClock(interval time.Duration) *WallClock {
	return &WallClock{ticker: time.NewTicker(interval), now: time.Now()}
}

// Now returns the time of the last tick.
func (c *WallClock) Now() time.Time { return c.now }

// Wait blocks until the next tick or ctx is done.
func (c *WallClock) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case t := <-c.ticker.C:
		c.now = t
		return nil
	}
}

// Stop releases the ticker.
func (c *WallClock) Stop() {
	c.ticker.Stop()
}

// AlignClock moves the source's last update to the clock's current time so
// the first tick after a resume only covers one clock interval, not the gap
// since the state was saved.
func AlignClock(state *systems.State, clock Clock) {
	state.Source.LastUpdate = clock.Now()
}
