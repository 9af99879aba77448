//go:build webgpu

package device

import (
	"errors"
	"fmt"
	"image"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"

	"lifegpu/internal/shader"
	"lifegpu/pkg/core"
)

const (
	webgpuTargetFormat  = wgpu.TextureFormatRGBA8Unorm
	webgpuDefaultTarget = 512
)

func init() {
	Register("webgpu", func(opts Options) (Device, error) { return NewWebGPU(opts) })
}

var usageBits = []struct {
	from gputypes.BufferUsage
	to   wgpu.BufferUsage
}{
	{gputypes.BufferUsageMapRead, wgpu.BufferUsageMapRead},
	{gputypes.BufferUsageMapWrite, wgpu.BufferUsageMapWrite},
	{gputypes.BufferUsageCopySrc, wgpu.BufferUsageCopySrc},
	{gputypes.BufferUsageCopyDst, wgpu.BufferUsageCopyDst},
	{gputypes.BufferUsageVertex, wgpu.BufferUsageVertex},
	{gputypes.BufferUsageUniform, wgpu.BufferUsageUniform},
	{gputypes.BufferUsageStorage, wgpu.BufferUsageStorage},
}

func toWGPUUsage(u gputypes.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	for _, b := range usageBits {
		if u&b.from != 0 {
			out |= b.to
		}
	}
	return out
}

func toWGPUStages(entry gputypes.BindGroupLayoutEntry) wgpu.ShaderStage {
	var out wgpu.ShaderStage
	if entry.Visibility&gputypes.ShaderStageVertex != 0 {
		out |= wgpu.ShaderStageVertex
	}
	if entry.Visibility&gputypes.ShaderStageFragment != 0 {
		out |= wgpu.ShaderStageFragment
	}
	if entry.Visibility&gputypes.ShaderStageCompute != 0 {
		out |= wgpu.ShaderStageCompute
	}
	return out
}

func toWGPUBindingType(t gputypes.BufferBindingType) (wgpu.BufferBindingType, error) {
	switch t {
	case gputypes.BufferBindingTypeUniform:
		return wgpu.BufferBindingTypeUniform, nil
	case gputypes.BufferBindingTypeStorage:
		return wgpu.BufferBindingTypeStorage, nil
	case gputypes.BufferBindingTypeReadOnlyStorage:
		return wgpu.BufferBindingTypeReadOnlyStorage, nil
	}
	return 0, fmt.Errorf("webgpu: unsupported binding type %v", t)
}

// WebGPU is a native device. Frames are rendered into an offscreen RGBA
// texture and read back through Image.
type WebGPU struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	limits   Limits
	label    string

	width, height uint32
	target        *wgpu.Texture
	targetView    *wgpu.TextureView
	rendered      bool
	released      bool
}

var _ Device = (*WebGPU)(nil)

// NewWebGPU requests the default adapter and a device from it.
func NewWebGPU(opts Options) (*WebGPU, error) {
	label := opts.Label
	if label == "" {
		label = "webgpu"
	}
	w, h := opts.Width, opts.Height
	if w <= 0 {
		w = webgpuDefaultTarget
	}
	if h <= 0 {
		h = webgpuDefaultTarget
	}

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	dev, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: label})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	supported := adapter.GetLimits().Limits
	maxBuf := supported.MaxBufferSize
	if opts.MaxBufferSize != 0 && opts.MaxBufferSize < maxBuf {
		maxBuf = opts.MaxBufferSize
	}
	d := &WebGPU{
		instance: instance,
		adapter:  adapter,
		device:   dev,
		queue:    dev.GetQueue(),
		label:    label,
		width:    uint32(w),
		height:   uint32(h),
		limits: Limits{
			SupportsCompute:                  supported.MaxComputeWorkgroupSizeX > 0,
			MaxBufferSize:                    maxBuf,
			MaxComputeWorkgroupSizeX:         supported.MaxComputeWorkgroupSizeX,
			MaxComputeWorkgroupsPerDimension: supported.MaxComputeWorkgroupsPerDimension,
		},
	}
	d.target, err = dev.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label + " target",
		Size:          wgpu.Extent3D{Width: d.width, Height: d.height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        webgpuTargetFormat,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("create render target: %w", err)
	}
	d.targetView, err = d.target.CreateView(nil)
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("create render target view: %w", err)
	}
	return d, nil
}

func (d *WebGPU) Name() string   { return d.label }
func (d *WebGPU) Limits() Limits { return d.limits }

type webgpuBuffer struct {
	label string
	size  uint64
	usage gputypes.BufferUsage
	buf   *wgpu.Buffer
}

func (b *webgpuBuffer) Label() string               { return b.label }
func (b *webgpuBuffer) Size() uint64                { return b.size }
func (b *webgpuBuffer) Usage() gputypes.BufferUsage { return b.usage }

func (d *WebGPU) CreateBuffer(desc BufferDesc) (Buffer, error) {
	if d.released {
		return nil, errWebGPUReleased
	}
	if desc.Size == 0 || desc.Size > d.limits.MaxBufferSize {
		return nil, &core.AllocationError{Label: desc.Label, Size: desc.Size, Err: fmt.Errorf("size outside (0, %d]", d.limits.MaxBufferSize)}
	}
	// Buffer sizes must be a multiple of four for copies.
	size := (desc.Size + 3) &^ 3
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: toWGPUUsage(desc.Usage),
	})
	if err != nil {
		return nil, &core.AllocationError{Label: desc.Label, Size: desc.Size, Err: err}
	}
	return &webgpuBuffer{label: desc.Label, size: desc.Size, usage: desc.Usage, buf: buf}, nil
}

var errWebGPUReleased = fmt.Errorf("%w: device released", core.ErrDeviceUnavailable)

func asWebGPUBuffer(buf Buffer) (*webgpuBuffer, error) {
	b, ok := buf.(*webgpuBuffer)
	if !ok || b == nil || b.buf == nil {
		return nil, fmt.Errorf("webgpu: unusable buffer %T", buf)
	}
	return b, nil
}

func (d *WebGPU) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	b, err := asWebGPUBuffer(buf)
	if err != nil {
		return err
	}
	return d.queue.WriteBuffer(b.buf, offset, data)
}

// ReadBuffer copies buf into a mappable staging buffer and waits for the
// queue to drain.
func (d *WebGPU) ReadBuffer(buf Buffer) ([]byte, error) {
	b, err := asWebGPUBuffer(buf)
	if err != nil {
		return nil, err
	}
	size := (b.size + 3) &^ 3
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: b.label + " readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, &core.AllocationError{Label: b.label + " readback", Size: size, Err: err}
	}
	defer staging.Release()

	enc, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Release()
	if err := enc.CopyBufferToBuffer(b.buf, 0, staging, 0, size); err != nil {
		return nil, err
	}
	return d.mapBack(enc, staging, size, b.size)
}

func (d *WebGPU) mapBack(enc *wgpu.CommandEncoder, staging *wgpu.Buffer, size, keep uint64) ([]byte, error) {
	cmd, err := enc.Finish(nil)
	if err != nil {
		return nil, err
	}
	d.queue.Submit(cmd)
	cmd.Release()

	var status wgpu.BufferMapAsyncStatus
	if err := staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) { status = s }); err != nil {
		return nil, err
	}
	d.device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("webgpu: map readback buffer: status %v", status)
	}
	out := make([]byte, keep)
	copy(out, staging.GetMappedRange(0, uint(size)))
	return out, staging.Unmap()
}

func (d *WebGPU) DestroyBuffer(buf Buffer) {
	if b, ok := buf.(*webgpuBuffer); ok && b != nil && b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

type webgpuLayout struct {
	label   string
	entries []gputypes.BindGroupLayoutEntry
	layout  *wgpu.BindGroupLayout
}

func (l *webgpuLayout) Label() string                            { return l.label }
func (l *webgpuLayout) Entries() []gputypes.BindGroupLayoutEntry { return l.entries }

func (d *WebGPU) CreateBindGroupLayout(label string, entries []gputypes.BindGroupLayoutEntry) (BindGroupLayout, error) {
	if d.released {
		return nil, errWebGPUReleased
	}
	native := make([]wgpu.BindGroupLayoutEntry, 0, len(entries))
	for _, e := range entries {
		if e.Buffer == nil {
			return nil, fmt.Errorf("webgpu: layout %q binding %d is not a buffer binding", label, e.Binding)
		}
		t, err := toWGPUBindingType(e.Buffer.Type)
		if err != nil {
			return nil, err
		}
		native = append(native, wgpu.BindGroupLayoutEntry{
			Binding:    e.Binding,
			Visibility: toWGPUStages(e),
			Buffer:     wgpu.BufferBindingLayout{Type: t},
		})
	}
	l, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{Label: label, Entries: native})
	if err != nil {
		return nil, err
	}
	return &webgpuLayout{label: label, entries: append([]gputypes.BindGroupLayoutEntry(nil), entries...), layout: l}, nil
}

type webgpuBindGroup struct {
	label  string
	layout *webgpuLayout
	group  *wgpu.BindGroup
}

func (g *webgpuBindGroup) Label() string           { return g.label }
func (g *webgpuBindGroup) Layout() BindGroupLayout { return g.layout }

func (d *WebGPU) CreateBindGroup(label string, layout BindGroupLayout, entries []BindGroupEntry) (BindGroup, error) {
	if d.released {
		return nil, errWebGPUReleased
	}
	l, ok := layout.(*webgpuLayout)
	if !ok {
		return nil, fmt.Errorf("webgpu: bind group %q: foreign layout %T", label, layout)
	}
	writable := map[uint32]bool{}
	for _, le := range l.entries {
		writable[le.Binding] = le.Buffer.Type == gputypes.BufferBindingTypeStorage
	}
	seen := map[*webgpuBuffer]bool{}
	native := make([]wgpu.BindGroupEntry, 0, len(entries))
	for _, e := range entries {
		b, err := asWebGPUBuffer(e.Buffer)
		if err != nil {
			return nil, err
		}
		if seen[b] {
			return nil, fmt.Errorf("webgpu: bind group %q: %w (%q)", label, core.ErrBufferAliased, b.label)
		}
		if writable[e.Binding] {
			seen[b] = true
		}
		native = append(native, wgpu.BindGroupEntry{Binding: e.Binding, Buffer: b.buf, Offset: 0, Size: wgpu.WholeSize})
	}
	for _, e := range entries {
		if b, _ := asWebGPUBuffer(e.Buffer); b != nil && seen[b] && !writable[e.Binding] {
			return nil, fmt.Errorf("webgpu: bind group %q: %w (%q)", label, core.ErrBufferAliased, b.label)
		}
	}
	g, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{Label: label, Layout: l.layout, Entries: native})
	if err != nil {
		return nil, err
	}
	return &webgpuBindGroup{label: label, layout: l, group: g}, nil
}

func (d *WebGPU) shaderModule(label, source string) (*wgpu.ShaderModule, error) {
	code, err := shader.CompileBytes(label, source)
	if err != nil {
		return nil, err
	}
	return d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:           label,
		SPIRVDescriptor: &wgpu.ShaderModuleSPIRVDescriptor{Code: code},
	})
}

func (d *WebGPU) pipelineLayout(label string, layout BindGroupLayout) (*wgpu.PipelineLayout, error) {
	l, ok := layout.(*webgpuLayout)
	if !ok {
		return nil, fmt.Errorf("webgpu: %q: foreign layout %T", label, layout)
	}
	return d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: []*wgpu.BindGroupLayout{l.layout},
	})
}

type webgpuComputePipeline struct {
	label    string
	pipeline *wgpu.ComputePipeline
}

func (p *webgpuComputePipeline) Label() string { return p.label }

func (d *WebGPU) CreateComputePipeline(k *ComputeKernel) (ComputePipeline, error) {
	if d.released {
		return nil, errWebGPUReleased
	}
	module, err := d.shaderModule(k.Label, k.Source)
	if err != nil {
		return nil, err
	}
	defer module.Release()
	layout, err := d.pipelineLayout(k.Label, k.Layout)
	if err != nil {
		return nil, err
	}
	defer layout.Release()
	p, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   k.Label,
		Layout:  layout,
		Compute: wgpu.ProgrammableStageDescriptor{Module: module, EntryPoint: k.EntryPoint},
	})
	if err != nil {
		return nil, err
	}
	return &webgpuComputePipeline{label: k.Label, pipeline: p}, nil
}

type webgpuRenderPipeline struct {
	label    string
	clear    [4]float32
	pipeline *wgpu.RenderPipeline
}

func (p *webgpuRenderPipeline) Label() string { return p.label }

func (d *WebGPU) CreateRenderPipeline(k *RenderKernel) (RenderPipeline, error) {
	if d.released {
		return nil, errWebGPUReleased
	}
	module, err := d.shaderModule(k.Label, k.Source)
	if err != nil {
		return nil, err
	}
	defer module.Release()
	layout, err := d.pipelineLayout(k.Label, k.Layout)
	if err != nil {
		return nil, err
	}
	defer layout.Release()
	p, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  k.Label,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: k.VertexEntry,
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: k.VertexStride,
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
				},
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: k.FragmentEntry,
			Targets: []wgpu.ColorTargetState{{
				Format:    webgpuTargetFormat,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive:   wgpu.PrimitiveState{Topology: wgpu.PrimitiveTopologyTriangleList},
		Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		return nil, err
	}
	return &webgpuRenderPipeline{label: k.Label, clear: k.ClearColor, pipeline: p}, nil
}

type webgpuEncoder struct {
	dev     *WebGPU
	label   string
	enc     *wgpu.CommandEncoder
	err     error
	cleared bool
}

type webgpuCommandBuffer struct {
	label string
	cmd   *wgpu.CommandBuffer
	draws bool
}

func (c *webgpuCommandBuffer) Label() string { return c.label }

func (d *WebGPU) CreateCommandEncoder(label string) (CommandEncoder, error) {
	if d.released {
		return nil, errWebGPUReleased
	}
	enc, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, err
	}
	return &webgpuEncoder{dev: d, label: label, enc: enc}, nil
}

func (e *webgpuEncoder) fail(err error) {
	if e.err == nil && err != nil {
		e.err = err
	}
}

func (e *webgpuEncoder) Dispatch(p ComputePipeline, group BindGroup, x, y, z uint32) {
	cp, ok := p.(*webgpuComputePipeline)
	g, ok2 := group.(*webgpuBindGroup)
	if !ok || !ok2 {
		e.fail(fmt.Errorf("webgpu: encoder %q: foreign pipeline or bind group", e.label))
		return
	}
	pass := e.enc.BeginComputePass(nil)
	pass.SetPipeline(cp.pipeline)
	pass.SetBindGroup(0, g.group, nil)
	pass.DispatchWorkgroups(x, y, z)
	e.fail(pass.End())
	pass.Release()
}

func (e *webgpuEncoder) Draw(p RenderPipeline, group BindGroup, vertices Buffer, vertexCount, instanceCount uint32) {
	rp, ok := p.(*webgpuRenderPipeline)
	g, ok2 := group.(*webgpuBindGroup)
	vb, err := asWebGPUBuffer(vertices)
	if !ok || !ok2 || err != nil {
		e.fail(fmt.Errorf("webgpu: encoder %q: foreign pipeline, bind group or vertex buffer", e.label))
		return
	}
	load := wgpu.LoadOpLoad
	if !e.cleared {
		load = wgpu.LoadOpClear
		e.cleared = true
	}
	c := rp.clear
	pass := e.enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: e.label,
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       e.dev.targetView,
			LoadOp:     load,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])},
		}},
	})
	pass.SetPipeline(rp.pipeline)
	pass.SetBindGroup(0, g.group, nil)
	pass.SetVertexBuffer(0, vb.buf, 0, wgpu.WholeSize)
	pass.Draw(vertexCount, instanceCount, 0, 0)
	e.fail(pass.End())
	pass.Release()
}

func (e *webgpuEncoder) Finish() (CommandBuffer, error) {
	defer e.enc.Release()
	if e.err != nil {
		return nil, e.err
	}
	cmd, err := e.enc.Finish(nil)
	if err != nil {
		return nil, err
	}
	return &webgpuCommandBuffer{label: e.label, cmd: cmd, draws: e.cleared}, nil
}

func (d *WebGPU) Submit(cmd CommandBuffer) error {
	if d.released {
		return errWebGPUReleased
	}
	cb, ok := cmd.(*webgpuCommandBuffer)
	if !ok || cb.cmd == nil {
		return errors.New("webgpu: foreign or already submitted command buffer")
	}
	d.queue.Submit(cb.cmd)
	cb.cmd.Release()
	cb.cmd = nil
	if cb.draws {
		d.rendered = true
	}
	return nil
}

// Present is a no-op for the offscreen target; rendered frames are read with
// Image.
func (d *WebGPU) Present() error {
	if d.released {
		return errWebGPUReleased
	}
	return nil
}

// Image reads the render target back into host memory.
func (d *WebGPU) Image() (*image.RGBA, error) {
	if d.released {
		return nil, errWebGPUReleased
	}
	img := image.NewRGBA(image.Rect(0, 0, int(d.width), int(d.height)))
	if !d.rendered {
		return img, nil
	}
	// Rows of a texture copy are aligned to 256 bytes.
	row := (d.width*4 + 255) &^ 255
	size := uint64(row) * uint64(d.height)
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: d.label + " target readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, &core.AllocationError{Label: d.label + " target readback", Size: size, Err: err}
	}
	defer staging.Release()
	enc, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Release()
	err = enc.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{Texture: d.target, MipLevel: 0, Aspect: wgpu.TextureAspectAll},
		&wgpu.ImageCopyBuffer{Buffer: staging, Layout: wgpu.TextureDataLayout{BytesPerRow: row, RowsPerImage: d.height}},
		&wgpu.Extent3D{Width: d.width, Height: d.height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return nil, err
	}
	raw, err := d.mapBack(enc, staging, size, size)
	if err != nil {
		return nil, err
	}
	for y := 0; y < int(d.height); y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+int(d.width)*4], raw[y*int(row):])
	}
	return img, nil
}

func (d *WebGPU) Release() {
	if d.released {
		return
	}
	d.released = true
	if d.targetView != nil {
		d.targetView.Release()
	}
	if d.target != nil {
		d.target.Release()
	}
	if d.queue != nil {
		d.queue.Release()
	}
	if d.device != nil {
		d.device.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
}
