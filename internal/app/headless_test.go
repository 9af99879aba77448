package app

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunPrintsPopulationLog(t *testing.T) {
	s := newTestSession(t, func(c *Config) { c.Pattern = "block" })
	var out bytes.Buffer
	if err := Run(context.Background(), s, RunOptions{Ticks: 4, Every: 2}, &out); err != nil {
		t.Fatal(err)
	}
	want := "generation 0 population 4\ngeneration 2 population 4\ngeneration 4 population 4\n"
	if out.String() != want {
		t.Fatalf("got %q want %q", out.String(), want)
	}
}

func TestRunWritesPNG(t *testing.T) {
	s := newTestSession(t, func(c *Config) { c.Pattern = "glider" })
	path := filepath.Join(t.TempDir(), "frame.png")
	if err := Run(context.Background(), s, RunOptions{Ticks: 2, Out: path, Scale: 3}, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 36 || cfg.Height != 36 {
		t.Fatalf("png is %dx%d, want 36x36", cfg.Width, cfg.Height)
	}
}

func TestRunRealtimeStopsOnCancel(t *testing.T) {
	s := newTestSession(t, func(c *Config) { c.Interval = time.Hour })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := Run(ctx, s, RunOptions{Ticks: 10, Realtime: true}, &out)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.Generation() != 0 {
		t.Fatalf("ticked %d times after cancel", s.Generation())
	}
	if !strings.HasPrefix(out.String(), "generation 0 ") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
