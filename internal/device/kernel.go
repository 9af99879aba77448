package device

import "math"

// ComputeKernel describes a compute pipeline. Source is WGSL; Host is the
// same algorithm in Go, run by devices without a GPU.
type ComputeKernel struct {
	Label         string
	Source        string
	EntryPoint    string
	WorkgroupSize [3]uint32
	Layout        BindGroupLayout
	Host          func(id [3]uint32, b *Bindings)
}

// RenderKernel describes a render pipeline with a single float32x2 vertex
// attribute at location 0 and one color target.
type RenderKernel struct {
	Label         string
	Source        string
	VertexEntry   string
	FragmentEntry string
	VertexStride  uint64
	Layout        BindGroupLayout
	ClearColor    [4]float32

	// Vertex transforms one vertex of one instance.
	Vertex func(in VertexInput, b *Bindings) VertexOutput
	// Fragment shades a primitive from its provoking vertex.
	Fragment func(in VertexOutput, b *Bindings) [4]float32
}

// VertexInput is what a host vertex function receives.
type VertexInput struct {
	Position [2]float32
	Vertex   uint32
	Instance uint32
}

// VertexOutput is what a host vertex function produces.
type VertexOutput struct {
	Position [4]float32
	Varying  [4]float32
}

// Bindings gives host kernels word-level access to bound buffers.
type Bindings struct {
	words map[uint32][]uint32
}

// NewBindings wraps already resolved buffer words. Devices build these; it is
// exported so kernels can be exercised directly in tests.
func NewBindings(words map[uint32][]uint32) *Bindings {
	return &Bindings{words: words}
}

// Words returns the backing words of the buffer at binding. Host kernels may
// only write to bindings declared as read-write storage.
func (b *Bindings) Words(binding uint32) []uint32 { return b.words[binding] }

// Uint32 reads word i of binding.
func (b *Bindings) Uint32(binding uint32, i int) uint32 { return b.words[binding][i] }

// Float32 reads word i of binding as an IEEE-754 float.
func (b *Bindings) Float32(binding uint32, i int) float32 {
	return math.Float32frombits(b.words[binding][i])
}
