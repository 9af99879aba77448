package pipeline

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"lifegpu/internal/device"
	"lifegpu/internal/shader"
	"lifegpu/pkg/core"
)

// ClearColor is the background of every rendered frame.
var ClearColor = [4]float32{0, 0, 0, 1}

// RenderStage draws one quad instance per cell of a generation buffer.
// Dead cells collapse to a point and produce no fragments.
type RenderStage struct {
	dev      device.Device
	w, h     int
	uniform  device.Buffer
	geometry *Geometry

	layout   device.BindGroupLayout
	pipeline device.RenderPipeline
	groups   map[*GenerationBuffer]device.BindGroup
}

// NewRenderStage compiles the cell kernels for a w*h grid.
func NewRenderStage(dev device.Device, uniform device.Buffer, geometry *Geometry, w, h int) (*RenderStage, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", core.ErrInvalidDimension, w, h)
	}
	r := &RenderStage{
		dev:      dev,
		w:        w,
		h:        h,
		uniform:  uniform,
		geometry: geometry,
		groups:   map[*GenerationBuffer]device.BindGroup{},
	}
	var err error
	r.layout, err = dev.CreateBindGroupLayout("render", []gputypes.BindGroupLayoutEntry{
		{Binding: bindingGrid, Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
		{Binding: bindingCells, Visibility: gputypes.ShaderStageVertex, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
	})
	if err != nil {
		return nil, fmt.Errorf("render layout: %w", err)
	}
	r.pipeline, err = dev.CreateRenderPipeline(&device.RenderKernel{
		Label:         "cells",
		Source:        shader.Cell(),
		VertexEntry:   shader.VertexEntry,
		FragmentEntry: shader.FragmentEntry,
		VertexStride:  quadVertexStride,
		Layout:        r.layout,
		ClearColor:    ClearColor,
		Vertex:        cellVertex,
		Fragment:      cellFragment,
	})
	if err != nil {
		return nil, fmt.Errorf("render pipeline: %w", err)
	}
	return r, nil
}

// CellVertex places one template vertex for cell (x, y) of a w*h grid.
// A dead cell maps every vertex to the cell's center, a zero-area point.
func CellVertex(pos [2]float32, x, y, w, h int, alive bool) [2]float32 {
	var state float32
	if alive {
		state = 1
	}
	fw, fh := float32(w), float32(h)
	return [2]float32{
		(state*pos[0]+1)/fw - 1 + float32(x)/fw*2,
		(state*pos[1]+1)/fh - 1 + float32(y)/fh*2,
	}
}

// CellColor is the fragment color of cell (x, y); it depends on position
// only.
func CellColor(x, y, w, h int) [4]float32 {
	u := float32(x) / float32(w)
	v := float32(y) / float32(h)
	return [4]float32{u, v, 1 - u, 1}
}

func cellVertex(in device.VertexInput, b *device.Bindings) device.VertexOutput {
	w := int(b.Uint32(bindingGrid, 0))
	h := int(b.Uint32(bindingGrid, 1))
	i := int(in.Instance)
	x, y := i%w, i/w
	alive := b.Uint32(bindingCells, i/core.WordBits)>>(i%core.WordBits)&1 == 1
	p := CellVertex(in.Position, x, y, w, h, alive)
	return device.VertexOutput{
		Position: [4]float32{p[0], p[1], 0, 1},
		Varying:  [4]float32{float32(x), float32(y)},
	}
}

func cellFragment(in device.VertexOutput, b *device.Bindings) [4]float32 {
	w := int(b.Uint32(bindingGrid, 0))
	h := int(b.Uint32(bindingGrid, 1))
	return CellColor(int(in.Varying[0]), int(in.Varying[1]), w, h)
}

func (r *RenderStage) bindGroup(buf *GenerationBuffer) (device.BindGroup, error) {
	if g, ok := r.groups[buf]; ok {
		return g, nil
	}
	g, err := r.dev.CreateBindGroup("render "+buf.Name, r.layout, []device.BindGroupEntry{
		{Binding: bindingGrid, Buffer: r.uniform},
		{Binding: bindingCells, Buffer: buf.Buffer()},
	})
	if err != nil {
		return nil, err
	}
	r.groups[buf] = g
	return g, nil
}

// Instances is the number of quads drawn per frame.
func (r *RenderStage) Instances() uint32 { return uint32(r.w * r.h) }

// Encode records a draw of buf. buf is bound read-only.
func (r *RenderStage) Encode(enc device.CommandEncoder, buf *GenerationBuffer) error {
	if buf == nil {
		return fmt.Errorf("%w: no buffer to render", core.ErrDimensionMismatch)
	}
	if buf.W != r.w || buf.H != r.h {
		return fmt.Errorf("%w: stage is %dx%d, buffer %s is %dx%d", core.ErrDimensionMismatch, r.w, r.h, buf.Name, buf.W, buf.H)
	}
	g, err := r.bindGroup(buf)
	if err != nil {
		return err
	}
	enc.Draw(r.pipeline, g, r.geometry.buf, r.geometry.VertexCount(), r.Instances())
	return nil
}
