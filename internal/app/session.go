package app

import (
	"fmt"

	"lifegpu/internal/core"
	"lifegpu/internal/device"
	"lifegpu/internal/pipeline"
	lifecore "lifegpu/pkg/core"
)

// Session is a running simulation on an open device. It satisfies core.Sim
// for the frame loop and HUD.
type Session struct {
	cfg    *Config
	dev    device.Device
	report lifecore.Reporter
	sim    *pipeline.Simulation

	popStep uint64
	pop     int
	popOK   bool
}

var _ core.Sim = (*Session)(nil)

// NewSession opens the configured device and starts a simulation on it.
// report may be nil. Every startup failure is reported as fatal once.
func NewSession(cfg *Config, report lifecore.Reporter) (*Session, error) {
	if report == nil {
		report = lifecore.LogReporter(nil)
	}
	fatal := func(err error) error {
		report(fmt.Sprintf("start session: %v", err), lifecore.SeverityFatal)
		return err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fatal(err)
	}
	dev, err := device.Open(cfg.Device, cfg.DeviceOptions())
	if err != nil {
		return nil, fatal(err)
	}
	s := &Session{cfg: cfg, dev: dev, report: report}
	if err := s.start(); err != nil {
		dev.Release()
		return nil, err
	}
	return s, nil
}

// start builds a simulation. pipeline.New reports its own failures; a failed
// first draw is reported here.
func (s *Session) start() error {
	sim, err := pipeline.New(s.dev, s.cfg.Pipeline(s.report))
	if err != nil {
		return err
	}
	if err := sim.Redraw(); err != nil {
		sim.Close()
		s.report(fmt.Sprintf("first draw: %v", err), lifecore.SeverityFatal)
		return err
	}
	s.sim = sim
	s.popOK = false
	return nil
}

// Reset replaces the simulation with a fresh one built from seed.
func (s *Session) Reset(seed int64) error {
	s.cfg.Seed = seed
	if s.sim != nil {
		s.sim.Close()
		s.sim = nil
	}
	return s.start()
}

// Name returns the simulation identifier.
func (s *Session) Name() string { return "life" }

// Size reports the grid dimensions.
func (s *Session) Size() core.Size { return core.Size{W: s.cfg.Width, H: s.cfg.Height} }

// Tick advances and renders one generation.
func (s *Session) Tick() error {
	if s.sim == nil {
		return lifecore.ErrHalted
	}
	return s.sim.Tick()
}

// Generation is the number of completed ticks.
func (s *Session) Generation() uint64 {
	if s.sim == nil {
		return 0
	}
	return s.sim.Step()
}

// Err reports the failure that halted the simulation.
func (s *Session) Err() error {
	if s.sim == nil {
		return lifecore.ErrHalted
	}
	return s.sim.Err()
}

// Device returns the open device.
func (s *Session) Device() device.Device { return s.dev }

// Snapshot reads the current generation back from the device.
func (s *Session) Snapshot() (*lifecore.BitGrid, error) {
	if s.sim == nil {
		return nil, lifecore.ErrHalted
	}
	return s.sim.Snapshot()
}

// Population counts live cells of the current generation. The count is
// cached per generation since it needs a readback.
func (s *Session) Population() (int, error) {
	step := s.Generation()
	if s.popOK && s.popStep == step {
		return s.pop, nil
	}
	g, err := s.Snapshot()
	if err != nil {
		return 0, err
	}
	s.pop, s.popStep, s.popOK = g.Population(), step, true
	return s.pop, nil
}

// Parameters captures the values shown on the HUD.
func (s *Session) Parameters() core.ParameterSnapshot {
	pop := "--"
	if n, err := s.Population(); err == nil {
		pop = fmt.Sprint(n)
	}
	status := "running"
	if err := s.Err(); err != nil {
		status = "halted"
	}
	initial := s.cfg.Fill
	if s.cfg.Pattern != "" {
		initial = s.cfg.Pattern
	}
	return core.ParameterSnapshot{Groups: []core.ParameterGroup{
		{
			Name: "Grid",
			Params: []core.Parameter{
				core.IntParam("w", "Width", int64(s.cfg.Width)),
				core.IntParam("h", "Height", int64(s.cfg.Height)),
				core.IntParam("seed", "Seed", s.cfg.Seed),
				core.StringParam("initial", "Initial", initial),
			},
		},
		{
			Name: "Run",
			Params: []core.Parameter{
				core.IntParam("generation", "Generation", int64(s.Generation())),
				core.StringParam("population", "Population", pop),
				core.DurationParam("interval", "Interval", s.cfg.Interval),
				core.StringParam("status", "Status", status),
			},
		},
		{
			Name: "Device",
			Params: []core.Parameter{
				core.StringParam("device", "Device", s.dev.Name()),
				core.IntParam("workgroup", "Workgroup", int64(s.cfg.Workgroup)),
				core.FloatParam("margin", "Margin", s.cfg.Margin),
			},
		},
	}}
}

// Close releases the simulation and the device.
func (s *Session) Close() {
	if s.sim != nil {
		s.sim.Close()
		s.sim = nil
	}
	if s.dev != nil {
		s.dev.Release()
		s.dev = nil
	}
}
