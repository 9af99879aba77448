package life

import (
	"lifegpu/pkg/core"
)

// Next applies Conway's rule: two neighbors keep the current state, three
// make the cell alive, anything else kills it.
func Next(alive bool, neighbors int) bool {
	switch neighbors {
	case 2:
		return alive
	case 3:
		return true
	default:
		return false
	}
}

// cellAt reads a packed cell with toroidal wrapping.
func cellAt(words []uint32, w, h, x, y int) int {
	x = (x%w + w) % w
	y = (y%h + h) % h
	idx := y*w + x
	return int(words[idx/core.WordBits]>>(idx%core.WordBits)) & 1
}

// NextWord computes the next generation of the 32 cells packed in word of
// src. Padding bits past w*h come back as zero. Only src is read, so callers
// may evaluate different words concurrently.
func NextWord(src []uint32, w, h, word int) uint32 {
	total := w * h
	var out uint32
	for bit := 0; bit < core.WordBits; bit++ {
		idx := word*core.WordBits + bit
		if idx >= total {
			break
		}
		x, y := idx%w, idx/w
		neighbors := 0
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				neighbors += cellAt(src, w, h, x+dx, y+dy)
			}
		}
		if Next(cellAt(src, w, h, x, y) == 1, neighbors) {
			out |= 1 << bit
		}
	}
	return out
}

// Life is a CPU reference implementation of Conway's Game of Life on a
// packed toroidal grid. It is used to cross-check the device pipeline.
type Life struct {
	cur *core.BitGrid
	nxt *core.BitGrid
}

// New returns a Life simulation starting from a copy of the provided grid.
func New(initial *core.BitGrid) *Life {
	cur := initial.Clone()
	nxt := initial.Clone()
	nxt.Clear()
	return &Life{cur: cur, nxt: nxt}
}

// Name returns the simulation identifier.
func (l *Life) Name() string { return "life" }

// Grid exposes the current generation.
func (l *Life) Grid() *core.BitGrid { return l.cur }

// Step advances the simulation by one generation.
func (l *Life) Step() {
	src := l.cur.RawWords()
	dst := l.nxt.RawWords()
	for i := range dst {
		dst[i] = NextWord(src, l.cur.W, l.cur.H, i)
	}
	l.cur, l.nxt = l.nxt, l.cur
}
