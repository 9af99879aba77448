package core

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestStep(interval time.Duration) (*FixedStep, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	fs := NewFixedStep(interval)
	fs.now = clock.now
	return fs, clock
}

func TestFixedStepFiresOnFirstCall(t *testing.T) {
	fs, _ := newTestStep(time.Second)
	if !fs.ShouldStep() {
		t.Fatal("expected first call to step")
	}
	if fs.ShouldStep() {
		t.Fatal("expected no step without elapsed time")
	}
}

func TestFixedStepWaitsForInterval(t *testing.T) {
	fs, clock := newTestStep(200 * time.Millisecond)
	fs.ShouldStep()
	clock.t = clock.t.Add(150 * time.Millisecond)
	if fs.ShouldStep() {
		t.Fatal("stepped before the interval elapsed")
	}
	clock.t = clock.t.Add(60 * time.Millisecond)
	if !fs.ShouldStep() {
		t.Fatal("expected a step once the interval elapsed")
	}
}

func TestFixedStepDropsBacklog(t *testing.T) {
	fs, clock := newTestStep(100 * time.Millisecond)
	fs.ShouldStep()
	clock.t = clock.t.Add(time.Second)
	steps := 0
	for i := 0; i < 10; i++ {
		if fs.ShouldStep() {
			steps++
		}
	}
	if steps != 2 {
		t.Fatalf("got %d steps after a stall, want 2", steps)
	}
}

func TestFixedStepDefaultsInterval(t *testing.T) {
	if got := NewFixedStep(0).Interval(); got != DefaultInterval {
		t.Fatalf("interval %v, want %v", got, DefaultInterval)
	}
}
