package core

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"
)

// WordBits is the number of cells packed into one storage word.
const WordBits = 32

// WordFiller produces the initial contents of one packed word.
type WordFiller func() uint32

// BitGrid stores a toroidal grid of binary cells packed 32 per word in
// row-major order. Cell (x, y) lives in bit (y*W+x)%32 of word (y*W+x)/32.
type BitGrid struct {
	W, H  int
	words []uint32
}

// WordCount returns the number of words needed to pack w*h cells.
func WordCount(w, h int) int {
	return (w*h + WordBits - 1) / WordBits
}

// NewBitGrid allocates a grid with the given dimensions. When fill is non-nil
// it is called once per word; padding bits past the last cell are cleared.
func NewBitGrid(w, h int, fill WordFiller) (*BitGrid, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimension, w, h)
	}
	g := &BitGrid{W: w, H: h, words: make([]uint32, WordCount(w, h))}
	if fill != nil {
		for i := range g.words {
			g.words[i] = fill()
		}
		g.maskPadding()
	}
	return g, nil
}

// Wrap applies toroidal wrapping to the provided coordinates.
func (g *BitGrid) Wrap(x, y int) (int, int) {
	x = (x%g.W + g.W) % g.W
	y = (y%g.H + g.H) % g.H
	return x, y
}

// Index returns the linear cell index for already wrapped coordinates.
func (g *BitGrid) Index(x, y int) int { return y*g.W + x }

// Cells returns the number of valid cells.
func (g *BitGrid) Cells() int { return g.W * g.H }

// Get reports whether the cell at the wrapped coordinates is alive.
func (g *BitGrid) Get(x, y int) bool {
	x, y = g.Wrap(x, y)
	idx := g.Index(x, y)
	return g.words[idx/WordBits]&(1<<(idx%WordBits)) != 0
}

// Set updates a single cell, leaving every other bit of its word untouched.
func (g *BitGrid) Set(x, y int, alive bool) {
	x, y = g.Wrap(x, y)
	idx := g.Index(x, y)
	mask := uint32(1) << (idx % WordBits)
	if alive {
		g.words[idx/WordBits] |= mask
		return
	}
	g.words[idx/WordBits] &^= mask
}

// RawWords exposes the packed representation. Callers must not modify it.
func (g *BitGrid) RawWords() []uint32 { return g.words }

// Bytes encodes the packed words little-endian for transfer to device memory.
func (g *BitGrid) Bytes() []byte {
	buf := make([]byte, len(g.words)*4)
	for i, w := range g.words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

// LoadBytes replaces the grid contents with little-endian words read back
// from device memory.
func (g *BitGrid) LoadBytes(data []byte) error {
	if len(data) < len(g.words)*4 {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrDimensionMismatch, len(data), len(g.words)*4)
	}
	for i := range g.words {
		g.words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return nil
}

// Clone returns a deep copy of the grid.
func (g *BitGrid) Clone() *BitGrid {
	return &BitGrid{W: g.W, H: g.H, words: append([]uint32(nil), g.words...)}
}

// SameSize reports whether both grids have identical dimensions.
func (g *BitGrid) SameSize(o *BitGrid) bool {
	return o != nil && g.W == o.W && g.H == o.H
}

// Equal reports whether both grids hold identical cells.
func (g *BitGrid) Equal(o *BitGrid) bool {
	if !g.SameSize(o) {
		return false
	}
	for i := range g.words {
		if g.words[i] != o.words[i] {
			return false
		}
	}
	return true
}

// Population counts live cells.
func (g *BitGrid) Population() int {
	n := 0
	for _, w := range g.words {
		n += bits.OnesCount32(w)
	}
	return n
}

// Clear kills every cell.
func (g *BitGrid) Clear() {
	for i := range g.words {
		g.words[i] = 0
	}
}

// String renders the grid as rows of '#' and '.', useful in test failures.
func (g *BitGrid) String() string {
	var sb strings.Builder
	sb.Grow((g.W + 1) * g.H)
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			if g.Get(x, y) {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (g *BitGrid) maskPadding() {
	used := g.Cells() % WordBits
	if used == 0 {
		return
	}
	g.words[len(g.words)-1] &= (uint32(1) << used) - 1
}
