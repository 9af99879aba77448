package core

import "time"

// DefaultInterval is the time between generations.
const DefaultInterval = 200 * time.Millisecond

// FixedStep gates a frame loop to one tick per interval. When frames arrive
// late the backlog is dropped rather than replayed, so a stall never causes a
// burst of ticks.
type FixedStep struct {
	interval    time.Duration
	accumulator time.Duration
	last        time.Time
	now         func() time.Time
}

// NewFixedStep constructs a FixedStep that fires on the first call.
func NewFixedStep(interval time.Duration) *FixedStep {
	fs := &FixedStep{now: time.Now}
	fs.SetInterval(interval)
	fs.accumulator = fs.interval
	return fs
}

// SetInterval changes the tick period. It is safe to call from the main loop.
func (f *FixedStep) SetInterval(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	f.interval = interval
}

// Interval returns the tick period.
func (f *FixedStep) Interval() time.Duration { return f.interval }

// Reset restarts timing so the next call fires immediately.
func (f *FixedStep) Reset() {
	f.last = time.Time{}
	f.accumulator = f.interval
}

// ShouldStep reports whether the simulation should advance by one tick.
func (f *FixedStep) ShouldStep() bool {
	now := f.now()
	if f.last.IsZero() {
		f.last = now
	}
	f.accumulator += now.Sub(f.last)
	f.last = now
	if f.accumulator < f.interval {
		return false
	}
	f.accumulator -= f.interval
	if f.accumulator > f.interval {
		f.accumulator = f.interval
	}
	return true
}
