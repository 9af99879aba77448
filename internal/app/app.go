//go:build ebiten

package app

import (
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"lifegpu/internal/core"
	"lifegpu/internal/render"
	"lifegpu/internal/ui"
	lifecore "lifegpu/pkg/core"
)

const hudWidth = 220

// Game adapts a session to the ebiten.Game interface. Ebiten calls Update at
// its own rate; a FixedStep gates ticks to the configured interval.
type Game struct {
	session *Session
	timer   *core.FixedStep
	painter *render.FramePainter
	hud     *ui.HUD
	overlay *ui.Overlay

	scale    int
	paused   bool
	tickOnce bool
	dirty    bool
	err      error
}

// New constructs a Game for the provided session.
func New(session *Session, cfg *Config) *Game {
	size := session.Size()
	return &Game{
		session: session,
		timer:   core.NewFixedStep(cfg.Interval),
		painter: render.NewFramePainter(size.W*cfg.Scale, size.H*cfg.Scale),
		hud:     ui.NewHUD(session, hudWidth),
		overlay: ui.NewOverlay(session, cfg.Scale),
		scale:   cfg.Scale,
		dirty:   true,
	}
}

// Reset restarts the simulation with the provided seed.
func (g *Game) Reset(seed int64) {
	if err := g.session.Reset(seed); err != nil {
		g.fail(err)
		return
	}
	g.timer.Reset()
	g.tickOnce = false
	g.dirty = true
	g.err = nil
}

func (g *Game) fail(err error) {
	g.err = err
	g.paused = true
	lifecore.Logger().Error("simulation stopped", "err", err)
}

// Update handles per-frame logic and advances the simulation.
func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyQ) || inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyN) {
		g.tickOnce = true
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		g.Reset(g.session.cfg.Seed)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyS) {
		g.Reset(time.Now().UnixNano())
	}

	g.overlay.Update()

	if g.err == nil && ((!g.paused && g.timer.ShouldStep()) || g.tickOnce) {
		g.tickOnce = false
		if err := g.session.Tick(); err != nil {
			// The scheduler has already reported it as fatal.
			g.fail(err)
		}
		g.dirty = true
	}
	g.hud.Update(g.painterWidth())
	return nil
}

func (g *Game) painterWidth() int {
	w, _ := g.painter.Size()
	return w
}

// Draw renders the current simulation state.
func (g *Game) Draw(screen *ebiten.Image) {
	if g.dirty {
		if err := g.painter.Refresh(g.session.Device()); err != nil {
			g.fail(err)
		}
		g.dirty = false
	}
	g.painter.Blit(screen)
	g.overlay.Draw(screen, g.paused, g.err)
	g.hud.Draw(screen, g.painterWidth(), g.scale)
}

// Layout returns the logical screen size.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	w, h := g.painter.Size()
	return w + hudWidth, h
}
