// Package pipeline runs Conway's Game of Life on a device: two packed
// generation buffers alternate between source and destination, a compute
// stage writes the next generation, and a render stage draws the generation
// just written. Both stages are recorded into one command buffer per tick.
package pipeline

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"lifegpu/internal/device"
	"lifegpu/pkg/core"
	"lifegpu/pkg/sims/life"
)

// Config describes a simulation.
type Config struct {
	Width, Height int
	// WorkgroupSize is a tuning knob; zero selects DefaultWorkgroupSize.
	WorkgroupSize uint32
	// Margin scales the cell quad; zero selects DefaultMargin.
	Margin float32

	Seed int64
	Fill core.FillStrategy
	// Pattern, when set, is placed at the center of an otherwise empty grid.
	Pattern string
	// Initial overrides Fill and Pattern.
	Initial *core.BitGrid

	// Reporter receives fatal tick failures. Nil logs them.
	Reporter core.Reporter
}

// InitialGrid builds the starting generation described by the config.
func (c Config) InitialGrid() (*core.BitGrid, error) {
	if c.Initial != nil {
		if c.Initial.W != c.Width || c.Initial.H != c.Height {
			return nil, fmt.Errorf("%w: initial grid %dx%d, config %dx%d",
				core.ErrDimensionMismatch, c.Initial.W, c.Initial.H, c.Width, c.Height)
		}
		return c.Initial.Clone(), nil
	}
	if c.Pattern != "" {
		p, err := life.Lookup(c.Pattern)
		if err != nil {
			return nil, err
		}
		g, err := core.NewBitGrid(c.Width, c.Height, nil)
		if err != nil {
			return nil, err
		}
		p.PlaceCentered(g)
		return g, nil
	}
	fill := c.Fill
	if fill == "" {
		fill = core.FillSeeded
	}
	filler, err := fill.Filler(c.Seed)
	if err != nil {
		return nil, err
	}
	return core.NewBitGrid(c.Width, c.Height, filler)
}

// Simulation owns every device resource of one running grid.
type Simulation struct {
	dev device.Device
	cfg Config

	uniform  device.Buffer
	geometry *Geometry
	buffers  [2]*GenerationBuffer
	sim      *SimulationStage
	render   *RenderStage
	sched    *FrameScheduler
	closed   bool
}

// New allocates buffers, uploads the initial generation into both of them and
// builds the stages. On failure everything allocated so far is released and
// the error is reported as fatal before it is returned.
func New(dev device.Device, cfg Config) (*Simulation, error) {
	s, err := newSimulation(dev, cfg)
	if err != nil {
		report := cfg.Reporter
		if report == nil {
			report = core.LogReporter(nil)
		}
		report(fmt.Sprintf("create simulation: %v", err), core.SeverityFatal)
		return nil, err
	}
	return s, nil
}

func newSimulation(dev device.Device, cfg Config) (*Simulation, error) {
	if dev == nil {
		return nil, core.ErrDeviceUnavailable
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", core.ErrInvalidDimension, cfg.Width, cfg.Height)
	}
	if cfg.WorkgroupSize == 0 {
		cfg.WorkgroupSize = DefaultWorkgroupSize
	}
	if cfg.Margin == 0 {
		cfg.Margin = DefaultMargin
	}
	initial, err := cfg.InitialGrid()
	if err != nil {
		return nil, err
	}

	s := &Simulation{dev: dev, cfg: cfg}
	if err := s.build(initial); err != nil {
		s.Close()
		return nil, err
	}
	core.Logger().Info("simulation ready",
		"width", cfg.Width, "height", cfg.Height,
		"words", core.WordCount(cfg.Width, cfg.Height),
		"workgroups", s.sim.Workgroups(),
		"population", initial.Population())
	return s, nil
}

func (s *Simulation) build(initial *core.BitGrid) error {
	var err error
	s.uniform, err = newGridUniform(s.dev, s.cfg.Width, s.cfg.Height)
	if err != nil {
		return err
	}
	s.geometry, err = NewGeometry(s.dev, s.cfg.Margin)
	if err != nil {
		return err
	}
	for i, name := range []string{"A", "B"} {
		s.buffers[i], err = NewGenerationBuffer(s.dev, name, s.cfg.Width, s.cfg.Height)
		if err != nil {
			return err
		}
		if err := s.buffers[i].Upload(s.dev, initial); err != nil {
			return err
		}
	}
	s.sim, err = NewSimulationStage(s.dev, s.uniform, s.cfg.Width, s.cfg.Height, s.cfg.WorkgroupSize)
	if err != nil {
		return err
	}
	s.render, err = NewRenderStage(s.dev, s.uniform, s.geometry, s.cfg.Width, s.cfg.Height)
	if err != nil {
		return err
	}
	s.sched = NewFrameScheduler(s.dev, s.buffers[0], s.buffers[1], s.sim, s.render, s.cfg.Reporter)
	return nil
}

func newGridUniform(dev device.Device, w, h int) (device.Buffer, error) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:], uint32(w))
	binary.LittleEndian.PutUint32(data[4:], uint32(h))
	buf, err := dev.CreateBuffer(device.BufferDesc{
		Label: "grid uniform",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("grid uniform: %w", err)
	}
	if err := dev.WriteBuffer(buf, 0, data); err != nil {
		dev.DestroyBuffer(buf)
		return nil, fmt.Errorf("grid uniform: %w", err)
	}
	return buf, nil
}

var errClosed = errors.New("simulation closed")

// Tick advances one generation and renders it.
func (s *Simulation) Tick() error {
	if s.closed {
		return fmt.Errorf("%w: %v", core.ErrHalted, errClosed)
	}
	return s.sched.Tick()
}

// Redraw renders the current generation without advancing.
func (s *Simulation) Redraw() error {
	if s.closed {
		return fmt.Errorf("%w: %v", core.ErrHalted, errClosed)
	}
	return s.sched.Redraw()
}

// Snapshot reads the current generation back from the device.
func (s *Simulation) Snapshot() (*core.BitGrid, error) {
	if s.closed {
		return nil, errClosed
	}
	return s.sched.Current().Snapshot(s.dev)
}

// Step is the number of generations advanced.
func (s *Simulation) Step() uint64 {
	if s.sched == nil {
		return 0
	}
	return s.sched.Step()
}

// Config returns the effective configuration.
func (s *Simulation) Config() Config { return s.cfg }

// Device returns the device the simulation runs on.
func (s *Simulation) Device() device.Device { return s.dev }

// Scheduler exposes the frame scheduler.
func (s *Simulation) Scheduler() *FrameScheduler { return s.sched }

// Err reports the failure that halted the simulation, if any.
func (s *Simulation) Err() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Halted()
}

// Close releases every device resource. The device itself stays open.
func (s *Simulation) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.sched != nil {
		s.sched.Halt(errClosed)
	}
	for _, b := range s.buffers {
		b.release(s.dev)
	}
	s.geometry.release(s.dev)
	if s.uniform != nil {
		s.dev.DestroyBuffer(s.uniform)
		s.uniform = nil
	}
}
