package pipeline

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"

	"lifegpu/internal/device"
)

// DefaultMargin leaves a visible gap between neighbouring cells.
const DefaultMargin = 0.8

const (
	quadVertexCount  = 6
	quadVertexStride = 8 // float32x2
)

// QuadVertices returns two triangles covering [-margin, margin]^2 as x,y
// pairs.
func QuadVertices(margin float32) []float32 {
	m := margin
	return []float32{
		-m, m,
		m, m,
		m, -m,

		-m, m,
		m, -m,
		-m, -m,
	}
}

// Geometry is the per-cell quad template uploaded once.
type Geometry struct {
	Margin float32
	buf    device.Buffer
}

// NewGeometry uploads the quad template.
func NewGeometry(dev device.Device, margin float32) (*Geometry, error) {
	if margin <= 0 || margin > 1 {
		return nil, fmt.Errorf("geometry: margin %v outside (0, 1]", margin)
	}
	verts := QuadVertices(margin)
	data := make([]byte, len(verts)*4)
	for i, v := range verts {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	buf, err := dev.CreateBuffer(device.BufferDesc{
		Label: "cell quad",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("geometry: %w", err)
	}
	if err := dev.WriteBuffer(buf, 0, data); err != nil {
		dev.DestroyBuffer(buf)
		return nil, fmt.Errorf("geometry: %w", err)
	}
	return &Geometry{Margin: margin, buf: buf}, nil
}

// VertexCount is the number of vertices drawn per instance.
func (g *Geometry) VertexCount() uint32 { return quadVertexCount }

func (g *Geometry) release(dev device.Device) {
	if g != nil && g.buf != nil {
		dev.DestroyBuffer(g.buf)
		g.buf = nil
	}
}
