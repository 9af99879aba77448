package pipeline

import (
	"errors"
	"fmt"

	"lifegpu/internal/device"
	"lifegpu/pkg/core"
)

// FrameScheduler owns the step counter and alternates the two generation
// buffers between source and destination. Even steps read A and write B, odd
// steps read B and write A.
//
// A FrameScheduler is not safe for concurrent use; the caller's timer
// serializes ticks.
type FrameScheduler struct {
	dev     device.Device
	buffers [2]*GenerationBuffer
	sim     *SimulationStage
	render  *RenderStage
	report  core.Reporter

	step   uint64
	halted error
}

// NewFrameScheduler wires the stages to the buffer pair. report may be nil.
func NewFrameScheduler(dev device.Device, a, b *GenerationBuffer, sim *SimulationStage, render *RenderStage, report core.Reporter) *FrameScheduler {
	if report == nil {
		report = core.LogReporter(nil)
	}
	a.role, b.role = RoleSource, RoleDestination
	return &FrameScheduler{
		dev:     dev,
		buffers: [2]*GenerationBuffer{a, b},
		sim:     sim,
		render:  render,
		report:  report,
	}
}

// Step is the number of generations advanced so far.
func (f *FrameScheduler) Step() uint64 { return f.step }

// Pair returns the buffers the next advance reads and writes.
func (f *FrameScheduler) Pair() BufferPair {
	return BufferPair{
		Source:      f.buffers[f.step%2],
		Destination: f.buffers[(f.step+1)%2],
	}
}

// Current is the buffer holding the latest generation.
func (f *FrameScheduler) Current() *GenerationBuffer { return f.buffers[f.step%2] }

// Advance records one simulation step and increments the step counter. The
// returned pair is the one that was encoded.
func (f *FrameScheduler) Advance(enc device.CommandEncoder) (BufferPair, error) {
	pair := f.Pair()
	if err := f.sim.Encode(enc, pair); err != nil {
		return pair, err
	}
	pair.Source.role = RoleSource
	pair.Destination.role = RoleDestination
	f.step++
	return pair, nil
}

// Render records a draw of the current generation.
func (f *FrameScheduler) Render(enc device.CommandEncoder) error {
	return f.render.Encode(enc, f.Current())
}

// Tick advances and renders in a single submission, then presents. It does
// not wait for the device to finish. The first failure is reported as fatal
// and every later call returns core.ErrHalted.
func (f *FrameScheduler) Tick() error {
	if f.halted != nil {
		return fmt.Errorf("%w: %v", core.ErrHalted, f.halted)
	}
	if err := f.tick(); err != nil {
		f.halted = err
		f.report(fmt.Sprintf("tick %d: %v", f.step, err), core.SeverityFatal)
		return err
	}
	core.Logger().Debug("tick", "step", f.step, "current", f.Current().Name)
	return nil
}

func (f *FrameScheduler) tick() error {
	enc, err := f.dev.CreateCommandEncoder(fmt.Sprintf("tick %d", f.step))
	if err != nil {
		return err
	}
	step, roles := f.step, [2]Role{f.buffers[0].role, f.buffers[1].role}
	if err := f.record(enc); err != nil {
		// Nothing was submitted; the current generation is unchanged.
		f.step = step
		f.buffers[0].role, f.buffers[1].role = roles[0], roles[1]
		return err
	}
	return f.dev.Present()
}

func (f *FrameScheduler) record(enc device.CommandEncoder) error {
	if _, err := f.Advance(enc); err != nil {
		return err
	}
	if err := f.Render(enc); err != nil {
		return err
	}
	cmd, err := enc.Finish()
	if err != nil {
		return err
	}
	return f.dev.Submit(cmd)
}

// Redraw renders and presents the current generation without advancing.
func (f *FrameScheduler) Redraw() error {
	if f.halted != nil {
		return fmt.Errorf("%w: %v", core.ErrHalted, f.halted)
	}
	enc, err := f.dev.CreateCommandEncoder("redraw")
	if err != nil {
		return err
	}
	if err := f.Render(enc); err != nil {
		return err
	}
	cmd, err := enc.Finish()
	if err != nil {
		return err
	}
	if err := f.dev.Submit(cmd); err != nil {
		return err
	}
	return f.dev.Present()
}

// Halted returns the error that stopped the scheduler, if any.
func (f *FrameScheduler) Halted() error { return f.halted }

// Halt stops the scheduler with err. Later ticks return core.ErrHalted.
func (f *FrameScheduler) Halt(err error) {
	if f.halted == nil {
		if err == nil {
			err = errors.New("halted by caller")
		}
		f.halted = err
	}
}
