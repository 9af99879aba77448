//go:build ebiten

package main

import (
	"errors"
	"flag"
	"os"

	"github.com/hajimehoshi/ebiten/v2"

	"lifegpu/internal/app"
	"lifegpu/pkg/core"
)

func main() {
	cfg := app.NewConfig()
	cfg.Bind(flag.CommandLine)
	flag.Parse()

	logger := cfg.Logger(os.Stderr)
	core.SetLogger(logger)

	// NewSession reports its own failures through the logger.
	session, err := app.NewSession(cfg, core.LogReporter(logger))
	if err != nil {
		os.Exit(1)
	}
	defer session.Close()

	game := app.New(session, cfg)
	w, h := game.Layout(0, 0)

	ebiten.SetWindowTitle("lifegpu - " + session.Device().Name())
	ebiten.SetWindowSize(w, h)

	if err := ebiten.RunGame(game); err != nil && !errors.Is(err, ebiten.Termination) {
		logger.Error("window closed", "err", err)
		session.Close()
		os.Exit(1)
	}
}
