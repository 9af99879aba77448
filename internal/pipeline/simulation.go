package pipeline

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"lifegpu/internal/device"
	"lifegpu/internal/shader"
	"lifegpu/pkg/core"
	"lifegpu/pkg/sims/life"
)

// DefaultWorkgroupSize is the number of words handled per workgroup.
const DefaultWorkgroupSize = 64

// Binding slots shared by both kernels.
const (
	bindingGrid   = 0
	bindingCells  = 1
	bindingOutput = 2
)

// SimulationStage advances one generation: it reads a source buffer and
// writes the next generation into a destination buffer. Each invocation
// computes one destination word so no two invocations write the same word.
type SimulationStage struct {
	dev       device.Device
	w, h      int
	words     int
	workgroup uint32
	uniform   device.Buffer

	layout   device.BindGroupLayout
	pipeline device.ComputePipeline
	groups   map[BufferPair]device.BindGroup
}

// NewSimulationStage compiles the compute kernel for a w*h grid.
func NewSimulationStage(dev device.Device, uniform device.Buffer, w, h int, workgroupSize uint32) (*SimulationStage, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", core.ErrInvalidDimension, w, h)
	}
	if workgroupSize == 0 {
		workgroupSize = DefaultWorkgroupSize
	}
	limits := dev.Limits()
	if limits.MaxComputeWorkgroupSizeX != 0 && workgroupSize > limits.MaxComputeWorkgroupSizeX {
		return nil, fmt.Errorf("simulation: workgroup size %d exceeds device limit %d", workgroupSize, limits.MaxComputeWorkgroupSizeX)
	}
	s := &SimulationStage{
		dev:       dev,
		w:         w,
		h:         h,
		words:     core.WordCount(w, h),
		workgroup: workgroupSize,
		uniform:   uniform,
		groups:    map[BufferPair]device.BindGroup{},
	}
	if n := s.Workgroups(); limits.MaxComputeWorkgroupsPerDimension != 0 && n > limits.MaxComputeWorkgroupsPerDimension {
		return nil, fmt.Errorf("%w: %dx%d needs %d workgroups, device allows %d",
			core.ErrInvalidDimension, w, h, n, limits.MaxComputeWorkgroupsPerDimension)
	}

	src, err := shader.Simulation(workgroupSize)
	if err != nil {
		return nil, err
	}
	s.layout, err = dev.CreateBindGroupLayout("simulation", []gputypes.BindGroupLayoutEntry{
		{Binding: bindingGrid, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
		{Binding: bindingCells, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
		{Binding: bindingOutput, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
	})
	if err != nil {
		return nil, fmt.Errorf("simulation layout: %w", err)
	}
	s.pipeline, err = dev.CreateComputePipeline(&device.ComputeKernel{
		Label:         "simulation",
		Source:        src,
		EntryPoint:    shader.ComputeEntry,
		WorkgroupSize: [3]uint32{workgroupSize, 1, 1},
		Layout:        s.layout,
		Host:          stepWord,
	})
	if err != nil {
		return nil, fmt.Errorf("simulation pipeline: %w", err)
	}
	return s, nil
}

// stepWord is the host form of the compute kernel.
func stepWord(id [3]uint32, b *device.Bindings) {
	w := int(b.Uint32(bindingGrid, 0))
	h := int(b.Uint32(bindingGrid, 1))
	word := int(id[0])
	if word*core.WordBits >= w*h {
		return
	}
	b.Words(bindingOutput)[word] = life.NextWord(b.Words(bindingCells), w, h, word)
}

// Workgroups is the dispatch count: ceil(words / workgroup size).
func (s *SimulationStage) Workgroups() uint32 {
	return uint32((s.words + int(s.workgroup) - 1) / int(s.workgroup))
}

func (s *SimulationStage) bindGroup(pair BufferPair) (device.BindGroup, error) {
	if g, ok := s.groups[pair]; ok {
		return g, nil
	}
	label := fmt.Sprintf("simulation %s->%s", pair.Source.Name, pair.Destination.Name)
	g, err := s.dev.CreateBindGroup(label, s.layout, []device.BindGroupEntry{
		{Binding: bindingGrid, Buffer: s.uniform},
		{Binding: bindingCells, Buffer: pair.Source.Buffer()},
		{Binding: bindingOutput, Buffer: pair.Destination.Buffer()},
	})
	if err != nil {
		return nil, err
	}
	s.groups[pair] = g
	return g, nil
}

// Encode records one generation step from pair.Source into pair.Destination.
func (s *SimulationStage) Encode(enc device.CommandEncoder, pair BufferPair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	if pair.Source.W != s.w || pair.Source.H != s.h {
		return fmt.Errorf("%w: stage is %dx%d, buffers are %dx%d", core.ErrDimensionMismatch, s.w, s.h, pair.Source.W, pair.Source.H)
	}
	g, err := s.bindGroup(pair)
	if err != nil {
		return err
	}
	enc.Dispatch(s.pipeline, g, s.Workgroups(), 1, 1)
	return nil
}
