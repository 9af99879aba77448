package life

import (
	"fmt"
	"sort"

	"lifegpu/pkg/core"
)

// Pattern is a named set of live cells relative to its top-left corner.
type Pattern struct {
	Name  string
	W, H  int
	Cells [][2]int
}

var patterns = map[string]Pattern{
	"block": {Name: "block", W: 2, H: 2, Cells: [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}},
	// Horizontal phase; the vertical phase follows one step later.
	"blinker": {Name: "blinker", W: 3, H: 1, Cells: [][2]int{{0, 0}, {1, 0}, {2, 0}}},
	"glider":  {Name: "glider", W: 3, H: 3, Cells: [][2]int{{1, 0}, {2, 1}, {0, 2}, {1, 2}, {2, 2}}},
	"r-pentomino": {Name: "r-pentomino", W: 3, H: 3, Cells: [][2]int{
		{1, 0}, {2, 0}, {0, 1}, {1, 1}, {1, 2},
	}},
}

// Lookup returns the named pattern.
func Lookup(name string) (Pattern, error) {
	p, ok := patterns[name]
	if !ok {
		return Pattern{}, fmt.Errorf("unknown pattern %q", name)
	}
	return p, nil
}

// Patterns lists the available pattern names in sorted order.
func Patterns() []string {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Place stamps the pattern onto g with its top-left corner at (x, y).
// Coordinates wrap.
func (p Pattern) Place(g *core.BitGrid, x, y int) {
	for _, c := range p.Cells {
		g.Set(x+c[0], y+c[1], true)
	}
}

// PlaceCentered stamps the pattern in the middle of g.
func (p Pattern) PlaceCentered(g *core.BitGrid) {
	p.Place(g, (g.W-p.W)/2, (g.H-p.H)/2)
}
