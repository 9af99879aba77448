package core

import (
	"errors"
	"slices"
	"testing"
)

func TestNewBitGridRejectsNonPositiveDimensions(t *testing.T) {
	for _, dims := range [][2]int{{0, 4}, {4, 0}, {-1, 3}, {3, -7}} {
		if _, err := NewBitGrid(dims[0], dims[1], nil); !errors.Is(err, ErrInvalidDimension) {
			t.Fatalf("NewBitGrid(%d, %d) err=%v, want ErrInvalidDimension", dims[0], dims[1], err)
		}
	}
}

func TestWordCount(t *testing.T) {
	cases := []struct {
		w, h, want int
	}{
		{32, 32, 32},
		{1, 1, 1},
		{5, 5, 1},
		{33, 1, 2},
		{7, 9, 2},
	}
	for _, tc := range cases {
		if got := WordCount(tc.w, tc.h); got != tc.want {
			t.Fatalf("WordCount(%d, %d) = %d, want %d", tc.w, tc.h, got, tc.want)
		}
		g, err := NewBitGrid(tc.w, tc.h, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(g.RawWords()) != tc.want {
			t.Fatalf("grid %dx%d allocated %d words, want %d", tc.w, tc.h, len(g.RawWords()), tc.want)
		}
	}
}

func TestToroidalWraparound(t *testing.T) {
	g, err := NewBitGrid(7, 5, NewRNG(3).Word)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			want := g.Get(x, y)
			if g.Get(x+g.W, y) != want || g.Get(x, y+g.H) != want || g.Get(x-g.W, y-g.H) != want {
				t.Fatalf("wraparound mismatch at (%d,%d)", x, y)
			}
			if g.Get(x-3*g.W, y+2*g.H) != want {
				t.Fatalf("multi-period wraparound mismatch at (%d,%d)", x, y)
			}
		}
	}
}

func TestNegativeCoordinatesUseTrueModulo(t *testing.T) {
	g, _ := NewBitGrid(4, 3, nil)
	g.Set(-1, -1, true)
	if !g.Get(3, 2) {
		t.Fatal("Set(-1,-1) should address the bottom-right cell")
	}
	if g.Population() != 1 {
		t.Fatalf("population = %d, want 1", g.Population())
	}
}

func TestBitIsolation(t *testing.T) {
	g, _ := NewBitGrid(9, 9, nil)
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			g.Clear()
			g.Set(x, y, true)
			for y2 := 0; y2 < g.H; y2++ {
				for x2 := 0; x2 < g.W; x2++ {
					if x2 == x && y2 == y {
						continue
					}
					g.Set(x2, y2, false)
				}
			}
			if !g.Get(x, y) {
				t.Fatalf("clearing other cells disturbed (%d,%d)", x, y)
			}
			if g.Population() != 1 {
				t.Fatalf("population = %d after isolating (%d,%d)", g.Population(), x, y)
			}
		}
	}
}

func TestSetPreservesNeighbouringBits(t *testing.T) {
	g, _ := NewBitGrid(32, 1, func() uint32 { return 0xFFFFFFFF })
	g.Set(5, 0, false)
	if got := g.RawWords()[0]; got != 0xFFFFFFDF {
		t.Fatalf("word = %#x, want %#x", got, uint32(0xFFFFFFDF))
	}
	g.Set(5, 0, true)
	if got := g.RawWords()[0]; got != 0xFFFFFFFF {
		t.Fatalf("word = %#x after restore", got)
	}
}

func TestBitLayout(t *testing.T) {
	g, _ := NewBitGrid(10, 4, nil)
	g.Set(3, 2, true) // index 23
	words := g.RawWords()
	if words[0] != 1<<23 {
		t.Fatalf("word 0 = %#x, want bit 23", words[0])
	}
	g.Set(3, 3, true) // index 33 -> word 1 bit 1
	if words[1] != 1<<1 {
		t.Fatalf("word 1 = %#x, want bit 1", words[1])
	}
}

func TestFillMasksPadding(t *testing.T) {
	g, err := NewBitGrid(5, 5, func() uint32 { return 0xFFFFFFFF })
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Population(); got != 25 {
		t.Fatalf("population = %d, want 25 (padding must stay clear)", got)
	}
	if got := g.RawWords()[0] >> 25; got != 0 {
		t.Fatalf("padding bits set: %#x", got)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	g, _ := NewBitGrid(40, 3, NewRNG(11).Word)
	data := g.Bytes()
	if len(data) != 4*len(g.RawWords()) {
		t.Fatalf("encoded %d bytes, want %d", len(data), 4*len(g.RawWords()))
	}
	if data[0] != byte(g.RawWords()[0]) {
		t.Fatal("encoding must be little-endian")
	}
	other, _ := NewBitGrid(40, 3, nil)
	if err := other.LoadBytes(data); err != nil {
		t.Fatal(err)
	}
	if !other.Equal(g) {
		t.Fatal("LoadBytes(Bytes()) changed the grid")
	}
	if err := other.LoadBytes(data[:4]); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("short LoadBytes err=%v, want ErrDimensionMismatch", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g, _ := NewBitGrid(6, 6, NewRNG(1).Word)
	c := g.Clone()
	c.Set(0, 0, !c.Get(0, 0))
	if g.Equal(c) {
		t.Fatal("mutating a clone changed the original")
	}
}

func TestSeededFillDeterministic(t *testing.T) {
	fa, err := FillSeeded.Filler(42)
	if err != nil {
		t.Fatal(err)
	}
	fb, _ := FillSeeded.Filler(42)
	a, _ := NewBitGrid(32, 32, fa)
	b, _ := NewBitGrid(32, 32, fb)
	if !slices.Equal(a.RawWords(), b.RawWords()) {
		t.Fatal("same seed produced different grids")
	}
	if a.Population() == 0 {
		t.Fatal("seeded fill produced an empty grid")
	}

	fc, _ := FillSeeded.Filler(43)
	c, _ := NewBitGrid(32, 32, fc)
	if a.Equal(c) {
		t.Fatal("different seeds produced identical grids")
	}

	empty, err := FillEmpty.Filler(42)
	if err != nil || empty != nil {
		t.Fatalf("FillEmpty.Filler = %v, %v; want nil filler", empty, err)
	}
	if _, err := FillStrategy("checkerboard").Filler(0); err == nil {
		t.Fatal("unknown strategy should fail")
	}
}

func TestAllocationErrorMatchesKind(t *testing.T) {
	err := error(&AllocationError{Label: "Cell State A", Size: 128})
	if !errors.Is(err, ErrResourceAllocationFailed) {
		t.Fatal("AllocationError must match ErrResourceAllocationFailed")
	}
	var alloc *AllocationError
	if !errors.As(err, &alloc) || alloc.Size != 128 {
		t.Fatalf("errors.As lost the requested size: %+v", alloc)
	}
}
