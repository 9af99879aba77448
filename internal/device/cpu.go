package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/gogpu/gputypes"
	"golang.org/x/sync/errgroup"

	"lifegpu/internal/shader"
	"lifegpu/pkg/core"
)

const (
	cpuMaxBufferSize         = 1 << 30
	cpuMaxWorkgroupSizeX     = 256
	cpuMaxWorkgroupsPerDim   = 65535
	cpuDefaultDrawChunkCells = 256
)

var errReleased = fmt.Errorf("%w: device released", core.ErrDeviceUnavailable)

func init() {
	Register("cpu", func(opts Options) (Device, error) { return NewCPU(opts) })
}

// CPU is a reference device. Dispatches run each kernel's Host function with
// workgroups spread over a bounded worker pool; draws run the host vertex and
// fragment functions and collect the resulting triangles into a Frame.
// Submissions execute synchronously in recording order, so every command
// observes the writes of the commands before it.
type CPU struct {
	label    string
	workers  int
	limits   Limits
	validate bool

	pending   *Frame
	presented Frame
	released  bool
}

var _ Device = (*CPU)(nil)
var _ FrameSource = (*CPU)(nil)

// NewCPU constructs a CPU device.
func NewCPU(opts Options) (*CPU, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	maxBuf := opts.MaxBufferSize
	if maxBuf == 0 {
		maxBuf = cpuMaxBufferSize
	}
	label := opts.Label
	if label == "" {
		label = "cpu"
	}
	return &CPU{
		label:    label,
		workers:  workers,
		validate: opts.ValidateShaders,
		limits: Limits{
			SupportsCompute:                  true,
			MaxBufferSize:                    maxBuf,
			MaxComputeWorkgroupSizeX:         cpuMaxWorkgroupSizeX,
			MaxComputeWorkgroupsPerDimension: cpuMaxWorkgroupsPerDim,
		},
	}, nil
}

// Name returns the device identifier.
func (d *CPU) Name() string { return d.label }

// Limits reports the device limits.
func (d *CPU) Limits() Limits { return d.limits }

type cpuBuffer struct {
	label string
	size  uint64
	usage gputypes.BufferUsage
	words []uint32
}

func (b *cpuBuffer) Label() string                   { return b.label }
func (b *cpuBuffer) Size() uint64                    { return b.size }
func (b *cpuBuffer) Usage() gputypes.BufferUsage     { return b.usage }
func (b *cpuBuffer) destroyed() bool                 { return b.words == nil }
func (b *cpuBuffer) has(u gputypes.BufferUsage) bool { return b.usage&u != 0 }

// CreateBuffer allocates zeroed host memory standing in for device memory.
func (d *CPU) CreateBuffer(desc BufferDesc) (Buffer, error) {
	if d.released {
		return nil, errReleased
	}
	if desc.Size == 0 || desc.Size > d.limits.MaxBufferSize {
		return nil, &core.AllocationError{
			Label: desc.Label,
			Size:  desc.Size,
			Err:   fmt.Errorf("size outside (0, %d]", d.limits.MaxBufferSize),
		}
	}
	core.Logger().Debug("cpu: create buffer", "label", desc.Label, "size", desc.Size)
	return &cpuBuffer{
		label: desc.Label,
		size:  desc.Size,
		usage: desc.Usage,
		words: make([]uint32, (desc.Size+3)/4),
	}, nil
}

func (d *CPU) buffer(buf Buffer) (*cpuBuffer, error) {
	if d.released {
		return nil, errReleased
	}
	b, ok := buf.(*cpuBuffer)
	if !ok || b == nil {
		return nil, fmt.Errorf("cpu: foreign buffer %T", buf)
	}
	if b.destroyed() {
		return nil, fmt.Errorf("cpu: buffer %q used after destroy", b.label)
	}
	return b, nil
}

// WriteBuffer copies little-endian data into the buffer. Offset and length
// must be multiples of four bytes.
func (d *CPU) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	b, err := d.buffer(buf)
	if err != nil {
		return err
	}
	if !b.has(gputypes.BufferUsageCopyDst) {
		return fmt.Errorf("cpu: buffer %q lacks CopyDst usage", b.label)
	}
	if offset%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("cpu: unaligned write to %q (offset %d, %d bytes)", b.label, offset, len(data))
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("cpu: write past end of %q (%d+%d > %d)", b.label, offset, len(data), b.size)
	}
	base := offset / 4
	for i := 0; i < len(data)/4; i++ {
		b.words[base+uint64(i)] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return nil
}

// ReadBuffer returns a little-endian copy of the buffer contents.
func (d *CPU) ReadBuffer(buf Buffer) ([]byte, error) {
	b, err := d.buffer(buf)
	if err != nil {
		return nil, err
	}
	if !b.has(gputypes.BufferUsageCopySrc) {
		return nil, fmt.Errorf("cpu: buffer %q lacks CopySrc usage", b.label)
	}
	out := make([]byte, len(b.words)*4)
	for i, w := range b.words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out[:b.size], nil
}

// DestroyBuffer releases the buffer's memory. Later use is an error.
func (d *CPU) DestroyBuffer(buf Buffer) {
	if b, ok := buf.(*cpuBuffer); ok && b != nil {
		b.words = nil
	}
}

type cpuLayout struct {
	label   string
	entries []gputypes.BindGroupLayoutEntry
}

func (l *cpuLayout) Label() string                            { return l.label }
func (l *cpuLayout) Entries() []gputypes.BindGroupLayoutEntry { return l.entries }

// CreateBindGroupLayout validates and records a buffer-only layout.
func (d *CPU) CreateBindGroupLayout(label string, entries []gputypes.BindGroupLayoutEntry) (BindGroupLayout, error) {
	if d.released {
		return nil, errReleased
	}
	seen := make(map[uint32]bool, len(entries))
	for _, e := range entries {
		if e.Buffer == nil {
			return nil, fmt.Errorf("cpu: layout %q binding %d is not a buffer binding", label, e.Binding)
		}
		if seen[e.Binding] {
			return nil, fmt.Errorf("cpu: layout %q declares binding %d twice", label, e.Binding)
		}
		seen[e.Binding] = true
		if e.Buffer.Type == gputypes.BufferBindingTypeStorage && e.Visibility&gputypes.ShaderStageCompute == 0 {
			return nil, fmt.Errorf("cpu: layout %q binding %d: writable storage is compute only", label, e.Binding)
		}
	}
	return &cpuLayout{label: label, entries: append([]gputypes.BindGroupLayoutEntry(nil), entries...)}, nil
}

type cpuBindGroup struct {
	label    string
	layout   *cpuLayout
	bindings map[uint32]*cpuBuffer
}

func (g *cpuBindGroup) Label() string           { return g.label }
func (g *cpuBindGroup) Layout() BindGroupLayout { return g.layout }

func (g *cpuBindGroup) resolve() (*Bindings, error) {
	words := make(map[uint32][]uint32, len(g.bindings))
	for binding, b := range g.bindings {
		if b.destroyed() {
			return nil, fmt.Errorf("cpu: bind group %q references destroyed buffer %q", g.label, b.label)
		}
		words[binding] = b.words
	}
	return NewBindings(words), nil
}

// CreateBindGroup binds buffers to a layout. A buffer bound as writable
// storage may not appear in any other slot of the same group.
func (d *CPU) CreateBindGroup(label string, layout BindGroupLayout, entries []BindGroupEntry) (BindGroup, error) {
	if d.released {
		return nil, errReleased
	}
	l, ok := layout.(*cpuLayout)
	if !ok || l == nil {
		return nil, fmt.Errorf("cpu: bind group %q: foreign layout %T", label, layout)
	}
	byBinding := make(map[uint32]BindGroupEntry, len(entries))
	for _, e := range entries {
		byBinding[e.Binding] = e
	}
	if len(byBinding) != len(l.entries) || len(entries) != len(l.entries) {
		return nil, fmt.Errorf("cpu: bind group %q has %d entries, layout %q wants %d", label, len(entries), l.label, len(l.entries))
	}

	group := &cpuBindGroup{label: label, layout: l, bindings: make(map[uint32]*cpuBuffer, len(entries))}
	writers := map[*cpuBuffer]uint32{}
	uses := map[*cpuBuffer]int{}
	for _, le := range l.entries {
		e, ok := byBinding[le.Binding]
		if !ok {
			return nil, fmt.Errorf("cpu: bind group %q is missing binding %d", label, le.Binding)
		}
		b, err := d.buffer(e.Buffer)
		if err != nil {
			return nil, fmt.Errorf("cpu: bind group %q binding %d: %w", label, le.Binding, err)
		}
		switch le.Buffer.Type {
		case gputypes.BufferBindingTypeUniform:
			if !b.has(gputypes.BufferUsageUniform) {
				return nil, fmt.Errorf("cpu: bind group %q binding %d: %q lacks Uniform usage", label, le.Binding, b.label)
			}
		case gputypes.BufferBindingTypeStorage:
			if !b.has(gputypes.BufferUsageStorage) {
				return nil, fmt.Errorf("cpu: bind group %q binding %d: %q lacks Storage usage", label, le.Binding, b.label)
			}
			writers[b] = le.Binding
		case gputypes.BufferBindingTypeReadOnlyStorage:
			if !b.has(gputypes.BufferUsageStorage) {
				return nil, fmt.Errorf("cpu: bind group %q binding %d: %q lacks Storage usage", label, le.Binding, b.label)
			}
		default:
			return nil, fmt.Errorf("cpu: bind group %q binding %d: unsupported binding type", label, le.Binding)
		}
		uses[b]++
		group.bindings[le.Binding] = b
	}
	for b, binding := range writers {
		if uses[b] > 1 {
			return nil, fmt.Errorf("cpu: bind group %q binding %d: %w (%q)", label, binding, core.ErrBufferAliased, b.label)
		}
	}
	return group, nil
}

type cpuComputePipeline struct{ kernel *ComputeKernel }

func (p *cpuComputePipeline) Label() string { return p.kernel.Label }

// CreateComputePipeline accepts a kernel with a host implementation.
func (d *CPU) CreateComputePipeline(k *ComputeKernel) (ComputePipeline, error) {
	if d.released {
		return nil, errReleased
	}
	if k == nil || k.Host == nil {
		return nil, errors.New("cpu: compute kernel needs a host implementation")
	}
	if _, ok := k.Layout.(*cpuLayout); !ok {
		return nil, fmt.Errorf("cpu: kernel %q: foreign layout %T", k.Label, k.Layout)
	}
	ws := k.WorkgroupSize
	if ws[0] == 0 || ws[1] == 0 || ws[2] == 0 || ws[0] > d.limits.MaxComputeWorkgroupSizeX {
		return nil, fmt.Errorf("cpu: kernel %q: invalid workgroup size %v", k.Label, ws)
	}
	if d.validate {
		if _, err := shader.Compile(k.Label, k.Source); err != nil {
			return nil, err
		}
	}
	return &cpuComputePipeline{kernel: k}, nil
}

type cpuRenderPipeline struct{ kernel *RenderKernel }

func (p *cpuRenderPipeline) Label() string { return p.kernel.Label }

// CreateRenderPipeline accepts a kernel with host vertex and fragment
// functions.
func (d *CPU) CreateRenderPipeline(k *RenderKernel) (RenderPipeline, error) {
	if d.released {
		return nil, errReleased
	}
	if k == nil || k.Vertex == nil || k.Fragment == nil {
		return nil, errors.New("cpu: render kernel needs host vertex and fragment functions")
	}
	if _, ok := k.Layout.(*cpuLayout); !ok {
		return nil, fmt.Errorf("cpu: kernel %q: foreign layout %T", k.Label, k.Layout)
	}
	if k.VertexStride < 8 || k.VertexStride%4 != 0 {
		return nil, fmt.Errorf("cpu: kernel %q: vertex stride %d cannot hold a float32x2", k.Label, k.VertexStride)
	}
	if d.validate {
		if _, err := shader.Compile(k.Label, k.Source); err != nil {
			return nil, err
		}
	}
	return &cpuRenderPipeline{kernel: k}, nil
}

type cpuDispatch struct {
	pipeline *cpuComputePipeline
	group    *cpuBindGroup
	count    [3]uint32
}

type cpuDraw struct {
	pipeline      *cpuRenderPipeline
	group         *cpuBindGroup
	vertices      *cpuBuffer
	vertexCount   uint32
	instanceCount uint32
}

type cpuCommand struct {
	dispatch *cpuDispatch
	draw     *cpuDraw
}

type cpuEncoder struct {
	dev      *CPU
	label    string
	cmds     []cpuCommand
	err      error
	finished bool
}

type cpuCommandBuffer struct {
	label     string
	cmds      []cpuCommand
	submitted bool
}

func (c *cpuCommandBuffer) Label() string { return c.label }

// CreateCommandEncoder starts recording a command buffer.
func (d *CPU) CreateCommandEncoder(label string) (CommandEncoder, error) {
	if d.released {
		return nil, errReleased
	}
	return &cpuEncoder{dev: d, label: label}, nil
}

func (e *cpuEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *cpuEncoder) Dispatch(p ComputePipeline, group BindGroup, x, y, z uint32) {
	if e.finished {
		e.fail(fmt.Errorf("cpu: encoder %q used after Finish", e.label))
		return
	}
	cp, ok := p.(*cpuComputePipeline)
	if !ok {
		e.fail(fmt.Errorf("cpu: encoder %q: foreign compute pipeline %T", e.label, p))
		return
	}
	g, ok := group.(*cpuBindGroup)
	if !ok {
		e.fail(fmt.Errorf("cpu: encoder %q: foreign bind group %T", e.label, group))
		return
	}
	if BindGroupLayout(g.layout) != cp.kernel.Layout {
		e.fail(fmt.Errorf("cpu: encoder %q: bind group %q does not match layout of %q", e.label, g.label, cp.kernel.Label))
		return
	}
	limit := e.dev.limits.MaxComputeWorkgroupsPerDimension
	if x > limit || y > limit || z > limit {
		e.fail(fmt.Errorf("cpu: encoder %q: dispatch (%d,%d,%d) exceeds %d per dimension", e.label, x, y, z, limit))
		return
	}
	e.cmds = append(e.cmds, cpuCommand{dispatch: &cpuDispatch{pipeline: cp, group: g, count: [3]uint32{x, y, z}}})
}

func (e *cpuEncoder) Draw(p RenderPipeline, group BindGroup, vertices Buffer, vertexCount, instanceCount uint32) {
	if e.finished {
		e.fail(fmt.Errorf("cpu: encoder %q used after Finish", e.label))
		return
	}
	rp, ok := p.(*cpuRenderPipeline)
	if !ok {
		e.fail(fmt.Errorf("cpu: encoder %q: foreign render pipeline %T", e.label, p))
		return
	}
	g, ok := group.(*cpuBindGroup)
	if !ok {
		e.fail(fmt.Errorf("cpu: encoder %q: foreign bind group %T", e.label, group))
		return
	}
	if BindGroupLayout(g.layout) != rp.kernel.Layout {
		e.fail(fmt.Errorf("cpu: encoder %q: bind group %q does not match layout of %q", e.label, g.label, rp.kernel.Label))
		return
	}
	vb, err := e.dev.buffer(vertices)
	if err != nil {
		e.fail(err)
		return
	}
	if !vb.has(gputypes.BufferUsageVertex) {
		e.fail(fmt.Errorf("cpu: encoder %q: %q lacks Vertex usage", e.label, vb.label))
		return
	}
	if uint64(vertexCount)*rp.kernel.VertexStride > vb.size {
		e.fail(fmt.Errorf("cpu: encoder %q: %d vertices overrun %q", e.label, vertexCount, vb.label))
		return
	}
	e.cmds = append(e.cmds, cpuCommand{draw: &cpuDraw{
		pipeline:      rp,
		group:         g,
		vertices:      vb,
		vertexCount:   vertexCount,
		instanceCount: instanceCount,
	}})
}

func (e *cpuEncoder) Finish() (CommandBuffer, error) {
	if e.finished {
		return nil, fmt.Errorf("cpu: encoder %q finished twice", e.label)
	}
	e.finished = true
	if e.err != nil {
		return nil, e.err
	}
	return &cpuCommandBuffer{label: e.label, cmds: e.cmds}, nil
}

// Submit executes the command buffer. Each dispatch completes before the next
// command starts.
func (d *CPU) Submit(cmd CommandBuffer) error {
	if d.released {
		return errReleased
	}
	cb, ok := cmd.(*cpuCommandBuffer)
	if !ok || cb == nil {
		return fmt.Errorf("cpu: foreign command buffer %T", cmd)
	}
	if cb.submitted {
		return fmt.Errorf("cpu: command buffer %q submitted twice", cb.label)
	}
	cb.submitted = true

	var frame *Frame
	for _, c := range cb.cmds {
		switch {
		case c.dispatch != nil:
			if err := d.runDispatch(c.dispatch); err != nil {
				return err
			}
		case c.draw != nil:
			if frame == nil {
				frame = &Frame{Clear: c.draw.pipeline.kernel.ClearColor}
			}
			if err := d.runDraw(c.draw, frame); err != nil {
				return err
			}
		}
	}
	if frame != nil {
		d.pending = frame
	}
	return nil
}

func (d *CPU) runDispatch(c *cpuDispatch) error {
	b, err := c.group.resolve()
	if err != nil {
		return err
	}
	k := c.pipeline.kernel
	ws := k.WorkgroupSize
	core.Logger().Debug("cpu: dispatch", "kernel", k.Label, "workgroups", c.count)

	var g errgroup.Group
	g.SetLimit(d.workers)
	for gz := uint32(0); gz < c.count[2]; gz++ {
		for gy := uint32(0); gy < c.count[1]; gy++ {
			for gx := uint32(0); gx < c.count[0]; gx++ {
				g.Go(func() error {
					for lz := uint32(0); lz < ws[2]; lz++ {
						for ly := uint32(0); ly < ws[1]; ly++ {
							for lx := uint32(0); lx < ws[0]; lx++ {
								k.Host([3]uint32{gx*ws[0] + lx, gy*ws[1] + ly, gz*ws[2] + lz}, b)
							}
						}
					}
					return nil
				})
			}
		}
	}
	return g.Wait()
}

func (d *CPU) runDraw(c *cpuDraw, frame *Frame) error {
	b, err := c.group.resolve()
	if err != nil {
		return err
	}
	k := c.pipeline.kernel
	stride := int(k.VertexStride / 4)
	vc := int(c.vertexCount)
	ic := int(c.instanceCount)
	positions := make([][2]float32, vc)
	for v := range positions {
		positions[v] = [2]float32{
			math.Float32frombits(c.vertices.words[v*stride]),
			math.Float32frombits(c.vertices.words[v*stride+1]),
		}
	}

	base := len(frame.Vertices)
	frame.Vertices = append(frame.Vertices, make([]Vertex, vc*ic)...)
	out := frame.Vertices[base:]

	var g errgroup.Group
	g.SetLimit(d.workers)
	for start := 0; start < ic; start += cpuDefaultDrawChunkCells {
		end := min(start+cpuDefaultDrawChunkCells, ic)
		g.Go(func() error {
			outputs := make([]VertexOutput, vc)
			for inst := start; inst < end; inst++ {
				for v := 0; v < vc; v++ {
					outputs[v] = k.Vertex(VertexInput{Position: positions[v], Vertex: uint32(v), Instance: uint32(inst)}, b)
				}
				for v := 0; v < vc; v++ {
					// Flat shading from the first vertex of each triangle.
					color := k.Fragment(outputs[v-v%3], b)
					p := outputs[v].Position
					w := p[3]
					if w == 0 {
						w = 1
					}
					out[inst*vc+v] = Vertex{X: p[0] / w, Y: p[1] / w, Color: color}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Present makes the most recently rendered frame visible through Frame.
func (d *CPU) Present() error {
	if d.released {
		return errReleased
	}
	if d.pending != nil {
		d.presented = *d.pending
		d.pending = nil
	}
	return nil
}

// Frame returns the last presented frame. Callers must not modify it.
func (d *CPU) Frame() Frame { return d.presented }

// Release tears the device down. Every later call fails with
// core.ErrDeviceUnavailable.
func (d *CPU) Release() {
	d.released = true
	d.pending = nil
	d.presented = Frame{}
}
