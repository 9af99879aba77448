// Package device defines the GPU collaborator the simulation core depends on
// and provides implementations of it.
//
// The core only ever allocates buffers, writes their initial bytes, builds
// bind groups against a layout, dispatches compute workgroups, draws instanced
// geometry and presents. Everything behind those calls (adapter selection,
// surface configuration, shader compilation) belongs to the implementation.
//
// Two implementations exist:
//   - cpu: a reference device that runs each kernel's host function on a
//     bounded worker pool and records drawn frames in memory.
//   - webgpu: a native device built on github.com/cogentcore/webgpu, compiled
//     in with the "webgpu" build tag.
package device

import (
	"image"

	"github.com/gogpu/gputypes"
)

// Buffer is a device allocation.
type Buffer interface {
	Label() string
	Size() uint64
	Usage() gputypes.BufferUsage
}

// BufferDesc describes a buffer to allocate.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// BindGroupLayout describes the resource slots a kernel reads and writes.
type BindGroupLayout interface {
	Label() string
	Entries() []gputypes.BindGroupLayoutEntry
}

// BindGroup binds concrete buffers to the slots of a layout.
type BindGroup interface {
	Label() string
	Layout() BindGroupLayout
}

// BindGroupEntry binds a whole buffer to a slot.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
}

// ComputePipeline is a compiled compute kernel.
type ComputePipeline interface {
	Label() string
}

// RenderPipeline is a compiled vertex+fragment kernel pair.
type RenderPipeline interface {
	Label() string
}

// CommandBuffer is a finished, submittable sequence of commands.
type CommandBuffer interface {
	Label() string
}

// CommandEncoder records commands in order. Recording errors are deferred
// until Finish.
type CommandEncoder interface {
	// Dispatch records a compute dispatch of x*y*z workgroups.
	Dispatch(p ComputePipeline, group BindGroup, x, y, z uint32)
	// Draw records an instanced draw reading per-vertex positions from
	// vertices (slot 0). The first draw of a command buffer clears the target.
	Draw(p RenderPipeline, group BindGroup, vertices Buffer, vertexCount, instanceCount uint32)
	// Finish closes the encoder.
	Finish() (CommandBuffer, error)
}

// Limits reports what a device can do.
type Limits struct {
	SupportsCompute                  bool
	MaxBufferSize                    uint64
	MaxComputeWorkgroupSizeX         uint32
	MaxComputeWorkgroupsPerDimension uint32
}

// Device is the collaborator providing GPU-visible memory and kernel
// execution. Implementations need not be safe for concurrent use.
type Device interface {
	Name() string
	Limits() Limits

	CreateBuffer(desc BufferDesc) (Buffer, error)
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	// ReadBuffer copies a buffer back to host memory. It may stall until
	// all submitted work completes.
	ReadBuffer(buf Buffer) ([]byte, error)
	DestroyBuffer(buf Buffer)

	CreateBindGroupLayout(label string, entries []gputypes.BindGroupLayoutEntry) (BindGroupLayout, error)
	CreateBindGroup(label string, layout BindGroupLayout, entries []BindGroupEntry) (BindGroup, error)
	CreateComputePipeline(k *ComputeKernel) (ComputePipeline, error)
	CreateRenderPipeline(k *RenderKernel) (RenderPipeline, error)

	CreateCommandEncoder(label string) (CommandEncoder, error)
	// Submit queues a command buffer. It does not wait for completion;
	// command buffers execute in submission order.
	Submit(cmd CommandBuffer) error
	// Present shows the most recently rendered frame.
	Present() error

	Release()
}

// FrameSource is implemented by devices that keep presented frames in host
// memory.
type FrameSource interface {
	Frame() Frame
}

// ImageSource is implemented by devices that render into a pixel target.
type ImageSource interface {
	Image() (*image.RGBA, error)
}

// Frame is a presented image expressed as flat-colored triangles in clip
// space.
type Frame struct {
	Clear    [4]float32
	Vertices []Vertex
}

// Vertex is one transformed vertex with its fragment color.
type Vertex struct {
	X, Y  float32
	Color [4]float32
}
