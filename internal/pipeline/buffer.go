package pipeline

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"lifegpu/internal/device"
	"lifegpu/pkg/core"
)

// Role is the part a generation buffer plays in the current tick.
type Role int

const (
	// RoleSource is read by the simulation stage and never written.
	RoleSource Role = iota
	// RoleDestination is written by the simulation stage and then rendered.
	RoleDestination
)

func (r Role) String() string {
	if r == RoleDestination {
		return "destination"
	}
	return "source"
}

const generationUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc

// GenerationBuffer owns the device storage of one packed generation.
type GenerationBuffer struct {
	Name string
	W, H int

	buf  device.Buffer
	role Role
}

// NewGenerationBuffer allocates device storage for a w*h packed grid.
func NewGenerationBuffer(dev device.Device, name string, w, h int) (*GenerationBuffer, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", core.ErrInvalidDimension, w, h)
	}
	size := uint64(core.WordCount(w, h)) * 4
	buf, err := dev.CreateBuffer(device.BufferDesc{
		Label: "generation " + name,
		Size:  size,
		Usage: generationUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("generation buffer %s: %w", name, err)
	}
	return &GenerationBuffer{Name: name, W: w, H: h, buf: buf}, nil
}

// Buffer returns the underlying device allocation.
func (b *GenerationBuffer) Buffer() device.Buffer { return b.buf }

// Role reports the role assigned by the most recent advance.
func (b *GenerationBuffer) Role() Role { return b.role }

// SameSize reports whether both buffers hold grids of equal dimensions.
func (b *GenerationBuffer) SameSize(o *GenerationBuffer) bool {
	return o != nil && b.W == o.W && b.H == o.H
}

// Upload writes g into the buffer.
func (b *GenerationBuffer) Upload(dev device.Device, g *core.BitGrid) error {
	if g.W != b.W || g.H != b.H {
		return fmt.Errorf("%w: grid %dx%d, buffer %s is %dx%d", core.ErrDimensionMismatch, g.W, g.H, b.Name, b.W, b.H)
	}
	return dev.WriteBuffer(b.buf, 0, g.Bytes())
}

// Snapshot reads the buffer back into a new grid.
func (b *GenerationBuffer) Snapshot(dev device.Device) (*core.BitGrid, error) {
	data, err := dev.ReadBuffer(b.buf)
	if err != nil {
		return nil, fmt.Errorf("read generation %s: %w", b.Name, err)
	}
	g, err := core.NewBitGrid(b.W, b.H, nil)
	if err != nil {
		return nil, err
	}
	if err := g.LoadBytes(data); err != nil {
		return nil, err
	}
	return g, nil
}

func (b *GenerationBuffer) release(dev device.Device) {
	if b != nil && b.buf != nil {
		dev.DestroyBuffer(b.buf)
		b.buf = nil
	}
}

// BufferPair is the source and destination of one simulation step.
type BufferPair struct {
	Source      *GenerationBuffer
	Destination *GenerationBuffer
}

// Validate rejects pairs the simulation stage cannot run on.
func (p BufferPair) Validate() error {
	if p.Source == nil || p.Destination == nil {
		return fmt.Errorf("%w: incomplete buffer pair", core.ErrDimensionMismatch)
	}
	if p.Source == p.Destination || p.Source.buf == p.Destination.buf {
		return fmt.Errorf("%w: %s", core.ErrBufferAliased, p.Source.Name)
	}
	if !p.Source.SameSize(p.Destination) {
		return fmt.Errorf("%w: %s is %dx%d, %s is %dx%d", core.ErrDimensionMismatch,
			p.Source.Name, p.Source.W, p.Source.H, p.Destination.Name, p.Destination.W, p.Destination.H)
	}
	return nil
}
