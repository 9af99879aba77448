package pipeline

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"lifegpu/internal/device"
	"lifegpu/pkg/core"
	"lifegpu/pkg/sims/life"
)

func newDevice(t *testing.T, opts device.Options) *device.CPU {
	t.Helper()
	dev, err := device.NewCPU(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(dev.Release)
	return dev
}

func newSimulation(t *testing.T, dev device.Device, cfg Config) *Simulation {
	t.Helper()
	s, err := New(dev, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func snapshot(t *testing.T, s *Simulation) *core.BitGrid {
	t.Helper()
	g, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func tick(t *testing.T, s *Simulation) {
	t.Helper()
	if err := s.Tick(); err != nil {
		t.Fatal(err)
	}
}

func TestBlockIsStillLife(t *testing.T) {
	dev := newDevice(t, device.Options{})
	s := newSimulation(t, dev, Config{Width: 8, Height: 8, Pattern: "block"})
	initial := snapshot(t, s)
	if initial.Population() != 4 {
		t.Fatalf("block population %d", initial.Population())
	}
	for i := 0; i < 3; i++ {
		tick(t, s)
		if got := snapshot(t, s); !got.Equal(initial) {
			t.Fatalf("block changed after %d ticks:\n%s", i+1, got)
		}
	}
}

func TestBlinkerHasPeriodTwo(t *testing.T) {
	dev := newDevice(t, device.Options{})
	s := newSimulation(t, dev, Config{Width: 5, Height: 5, Pattern: "blinker"})
	initial := snapshot(t, s)
	tick(t, s)
	first := snapshot(t, s)
	if first.Equal(initial) {
		t.Fatal("blinker did not change after one tick")
	}
	if first.Population() != 3 {
		t.Fatalf("blinker population %d after one tick", first.Population())
	}
	tick(t, s)
	if got := snapshot(t, s); !got.Equal(initial) {
		t.Fatalf("blinker did not return after two ticks:\n%s", got)
	}
}

func TestSeededRunsAreDeterministic(t *testing.T) {
	cfg := Config{Width: 37, Height: 23, Seed: 42, Fill: core.FillSeeded}
	a := newSimulation(t, newDevice(t, device.Options{Workers: 1}), cfg)
	b := newSimulation(t, newDevice(t, device.Options{Workers: 4}), cfg)
	for i := 0; i < 10; i++ {
		tick(t, a)
		tick(t, b)
	}
	if ga, gb := snapshot(t, a), snapshot(t, b); !ga.Equal(gb) {
		t.Fatalf("runs diverged:\n%s\nvs\n%s", ga, gb)
	}
}

func TestMatchesReferenceRule(t *testing.T) {
	cases := []struct {
		name      string
		w, h      int
		workgroup uint32
	}{
		{"padded", 45, 17, 8},
		{"exact words", 32, 8, 64},
		{"single column", 1, 33, 1},
		{"tiny torus", 3, 3, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dev := newDevice(t, device.Options{Workers: 3})
			s := newSimulation(t, dev, Config{Width: tc.w, Height: tc.h, WorkgroupSize: tc.workgroup, Seed: 7})
			ref := life.New(snapshot(t, s))
			for step := 1; step <= 20; step++ {
				tick(t, s)
				ref.Step()
				got := snapshot(t, s)
				if !got.Equal(ref.Grid()) {
					t.Fatalf("step %d diverged from reference:\n%s\nwant\n%s", step, got, ref.Grid())
				}
				words := got.RawWords()
				if pad := got.Cells() % core.WordBits; pad != 0 && words[len(words)-1]>>pad != 0 {
					t.Fatalf("step %d: padding bits set in %#x", step, words[len(words)-1])
				}
			}
		})
	}
}

func TestAdvanceDoesNotWriteSource(t *testing.T) {
	dev := newDevice(t, device.Options{})
	s := newSimulation(t, dev, Config{Width: 16, Height: 9, Seed: 3})
	initial := snapshot(t, s)
	source := s.Scheduler().Pair().Source
	tick(t, s)
	got, err := source.Snapshot(dev)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(initial) {
		t.Fatal("source buffer modified by advance")
	}
}

func TestSchedulerAlternatesBuffers(t *testing.T) {
	dev := newDevice(t, device.Options{})
	s := newSimulation(t, dev, Config{Width: 8, Height: 8, Seed: 1})
	sched := s.Scheduler()
	for i := uint64(0); i < 6; i++ {
		if sched.Step() != i {
			t.Fatalf("step %d, want %d", sched.Step(), i)
		}
		pair := sched.Pair()
		wantSrc, wantDst := "A", "B"
		if i%2 == 1 {
			wantSrc, wantDst = "B", "A"
		}
		if pair.Source.Name != wantSrc || pair.Destination.Name != wantDst {
			t.Fatalf("step %d: pair %s->%s, want %s->%s", i, pair.Source.Name, pair.Destination.Name, wantSrc, wantDst)
		}
		tick(t, s)
		if sched.Current() != pair.Destination {
			t.Fatalf("step %d: current is %s, want %s", i, sched.Current().Name, pair.Destination.Name)
		}
		if pair.Source.Role() != RoleSource || pair.Destination.Role() != RoleDestination {
			t.Fatalf("step %d: roles %v/%v", i, pair.Source.Role(), pair.Destination.Role())
		}
	}
}

func TestRenderIsPureAndCollapsesDeadCells(t *testing.T) {
	dev := newDevice(t, device.Options{Workers: 2})
	initial, err := core.NewBitGrid(4, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	initial.Set(1, 2, true)
	s := newSimulation(t, dev, Config{Width: 4, Height: 4, Initial: initial})

	if err := s.Redraw(); err != nil {
		t.Fatal(err)
	}
	first := dev.Frame()
	if err := s.Redraw(); err != nil {
		t.Fatal(err)
	}
	second := dev.Frame()
	if !slices.Equal(first.Vertices, second.Vertices) || first.Clear != second.Clear {
		t.Fatal("rendering the same generation twice produced different frames")
	}
	if first.Clear != ClearColor {
		t.Fatalf("clear color %v", first.Clear)
	}
	if len(first.Vertices) != 16*quadVertexCount {
		t.Fatalf("got %d vertices, want %d", len(first.Vertices), 16*quadVertexCount)
	}

	quad := QuadVertices(DefaultMargin)
	alive := 2*4 + 1
	for v := 0; v < quadVertexCount; v++ {
		got := first.Vertices[alive*quadVertexCount+v]
		want := CellVertex([2]float32{quad[2*v], quad[2*v+1]}, 1, 2, 4, 4, true)
		if got.X != want[0] || got.Y != want[1] {
			t.Fatalf("alive vertex %d at (%v,%v), want %v", v, got.X, got.Y, want)
		}
		if got.Color != CellColor(1, 2, 4, 4) {
			t.Fatalf("alive vertex %d color %v", v, got.Color)
		}
	}
	dead := first.Vertices[:quadVertexCount]
	for _, v := range dead {
		if v.X != dead[0].X || v.Y != dead[0].Y {
			t.Fatal("dead cell quad has area")
		}
	}
	if dead[0].X != -0.75 || dead[0].Y != -0.75 {
		t.Fatalf("dead cell 0 collapsed to (%v,%v)", dead[0].X, dead[0].Y)
	}
}

func TestCellColorDependsOnPositionOnly(t *testing.T) {
	if got := CellColor(0, 0, 8, 8); got != [4]float32{0, 0, 1, 1} {
		t.Fatalf("origin color %v", got)
	}
	if got := CellColor(4, 2, 8, 8); got != [4]float32{0.5, 0.25, 0.5, 1} {
		t.Fatalf("color %v", got)
	}
}

func TestAllocationFailureReportsRequestedSize(t *testing.T) {
	dev := newDevice(t, device.Options{MaxBufferSize: 256})
	var messages []string
	var severities []core.Severity
	_, err := New(dev, Config{Width: 64, Height: 64, Reporter: func(msg string, sev core.Severity) {
		messages = append(messages, msg)
		severities = append(severities, sev)
	}})
	if !errors.Is(err, core.ErrResourceAllocationFailed) {
		t.Fatalf("expected ErrResourceAllocationFailed, got %v", err)
	}
	var alloc *core.AllocationError
	if !errors.As(err, &alloc) {
		t.Fatalf("expected *AllocationError, got %T", err)
	}
	if want := uint64(core.WordCount(64, 64) * 4); alloc.Size != want {
		t.Fatalf("requested size %d, want %d", alloc.Size, want)
	}
	if !slices.Equal(severities, []core.Severity{core.SeverityFatal}) {
		t.Fatalf("reports %v, want one fatal", severities)
	}
	if !strings.Contains(messages[0], "512 bytes") {
		t.Fatalf("report %q does not name the requested size", messages[0])
	}
}

func TestInvalidConfigIsReported(t *testing.T) {
	dev := newDevice(t, device.Options{})
	var reports []core.Severity
	_, err := New(dev, Config{Width: 0, Height: 8, Reporter: func(_ string, sev core.Severity) {
		reports = append(reports, sev)
	}})
	if !errors.Is(err, core.ErrInvalidDimension) {
		t.Fatalf("expected ErrInvalidDimension, got %v", err)
	}
	if !slices.Equal(reports, []core.Severity{core.SeverityFatal}) {
		t.Fatalf("reports %v", reports)
	}
}

func TestStageRejectsBadPairs(t *testing.T) {
	dev := newDevice(t, device.Options{})
	s := newSimulation(t, dev, Config{Width: 8, Height: 8})
	a := s.Scheduler().Pair().Source
	other, err := NewGenerationBuffer(dev, "C", 9, 8)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := dev.CreateCommandEncoder("bad")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.sim.Encode(enc, BufferPair{Source: a, Destination: a}); !errors.Is(err, core.ErrBufferAliased) {
		t.Fatalf("expected ErrBufferAliased, got %v", err)
	}
	if err := s.sim.Encode(enc, BufferPair{Source: a, Destination: other}); !errors.Is(err, core.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := s.render.Encode(enc, other); !errors.Is(err, core.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestInvalidDimensions(t *testing.T) {
	dev := newDevice(t, device.Options{})
	for _, size := range [][2]int{{0, 4}, {4, 0}, {-1, 3}} {
		if _, err := New(dev, Config{Width: size[0], Height: size[1]}); !errors.Is(err, core.ErrInvalidDimension) {
			t.Fatalf("%v: expected ErrInvalidDimension, got %v", size, err)
		}
	}
}

func TestFailedTickHaltsAndReports(t *testing.T) {
	dev, err := device.NewCPU(device.Options{})
	if err != nil {
		t.Fatal(err)
	}
	var reports []core.Severity
	s, err := New(dev, Config{Width: 8, Height: 8, Reporter: func(_ string, sev core.Severity) {
		reports = append(reports, sev)
	}})
	if err != nil {
		t.Fatal(err)
	}
	tick(t, s)
	dev.Release()
	if err := s.Tick(); !errors.Is(err, core.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if !slices.Equal(reports, []core.Severity{core.SeverityFatal}) {
		t.Fatalf("reports %v", reports)
	}
	if err := s.Tick(); !errors.Is(err, core.ErrHalted) {
		t.Fatalf("expected ErrHalted, got %v", err)
	}
	if len(reports) != 1 {
		t.Fatal("halted ticks must not report again")
	}
}

func TestWorkgroupCount(t *testing.T) {
	dev := newDevice(t, device.Options{})
	s := newSimulation(t, dev, Config{Width: 37, Height: 23, WorkgroupSize: 8})
	// 851 cells -> 27 words -> 4 workgroups of 8.
	if got := s.sim.Workgroups(); got != 4 {
		t.Fatalf("workgroups %d, want 4", got)
	}
}

func TestInitialGridMismatch(t *testing.T) {
	g, err := core.NewBitGrid(4, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := (Config{Width: 5, Height: 4, Initial: g}).InitialGrid(); !errors.Is(err, core.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

// flakySubmit fails every submission once armed.
type flakySubmit struct {
	device.Device
	armed bool
}

var errSubmit = errors.New("queue lost")

func (d *flakySubmit) Submit(cmd device.CommandBuffer) error {
	if d.armed {
		return errSubmit
	}
	return d.Device.Submit(cmd)
}

func TestFailedSubmitKeepsCurrentGeneration(t *testing.T) {
	dev := &flakySubmit{Device: newDevice(t, device.Options{})}
	s := newSimulation(t, dev, Config{Width: 8, Height: 8, Pattern: "blinker", Reporter: func(string, core.Severity) {}})
	tick(t, s)
	afterOne := snapshot(t, s)
	current := s.Scheduler().Current()

	dev.armed = true
	if err := s.Tick(); !errors.Is(err, errSubmit) {
		t.Fatalf("expected submit error, got %v", err)
	}
	if s.Step() != 1 {
		t.Fatalf("step %d after failed tick, want 1", s.Step())
	}
	if s.Scheduler().Current() != current {
		t.Fatal("current buffer moved on a failed tick")
	}
	if got := snapshot(t, s); !got.Equal(afterOne) {
		t.Fatalf("snapshot changed after failed tick:\n%s", got)
	}
}
