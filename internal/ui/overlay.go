//go:build ebiten

package ui

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font/basicfont"

	"lifegpu/internal/core"
)

var helpLines = []string{
	"space  pause / resume",
	"n      single step",
	"r      reset (same seed)",
	"s      reset (new seed)",
	"g      cell grid",
	"h      this help",
	"q/esc  quit",
}

// Overlay draws the key help, an optional cell grid and the paused or
// halted banner on top of the simulation view.
type Overlay struct {
	sim      core.Sim
	scale    int
	showHelp bool
	showGrid bool
	pixel    *ebiten.Image
}

// NewOverlay constructs a new overlay instance.
func NewOverlay(sim core.Sim, scale int) *Overlay {
	if scale <= 0 {
		scale = 1
	}
	o := &Overlay{sim: sim, scale: scale}
	o.pixel = ebiten.NewImage(1, 1)
	o.pixel.Fill(color.White)
	return o
}

// Update handles the overlay toggles.
func (o *Overlay) Update() {
	if inpututil.IsKeyJustPressed(ebiten.KeyH) {
		o.showHelp = !o.showHelp
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyG) {
		o.showGrid = !o.showGrid
	}
}

// Draw renders the overlay onto the provided screen.
func (o *Overlay) Draw(screen *ebiten.Image, paused bool, err error) {
	size := o.sim.Size()
	if o.showGrid && o.scale >= 4 {
		o.drawGrid(screen, size)
	}
	face := basicfont.Face7x13
	switch {
	case err != nil:
		o.fillRect(screen, 0, 0, float64(size.W*o.scale), 20, color.RGBA{R: 90, G: 16, B: 16, A: 220})
		text.Draw(screen, "halted: "+err.Error(), face, 6, 14, color.White)
	case paused:
		text.Draw(screen, "paused", face, 6, 14, color.RGBA{R: 230, G: 230, B: 120, A: 255})
	}
	if o.showHelp {
		top := 28
		o.fillRect(screen, 4, float64(top-14), 190, float64(len(helpLines)*14+8), color.RGBA{A: 200})
		for i, line := range helpLines {
			text.Draw(screen, line, face, 10, top+i*14, color.White)
		}
	}
}

func (o *Overlay) drawGrid(screen *ebiten.Image, size core.Size) {
	line := color.RGBA{R: 40, G: 40, B: 48, A: 255}
	w, h := float64(size.W*o.scale), float64(size.H*o.scale)
	for x := 0; x <= size.W; x++ {
		o.fillRect(screen, float64(x*o.scale), 0, 1, h, line)
	}
	for y := 0; y <= size.H; y++ {
		o.fillRect(screen, 0, float64(y*o.scale), w, 1, line)
	}
}

func (o *Overlay) fillRect(screen *ebiten.Image, x, y, w, h float64, col color.RGBA) {
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(w, h)
	op.GeoM.Translate(x, y)
	op.ColorM.Scale(float64(col.R)/255.0, float64(col.G)/255.0, float64(col.B)/255.0, float64(col.A)/255.0)
	screen.DrawImage(o.pixel, op)
}
