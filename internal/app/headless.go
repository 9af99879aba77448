package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"lifegpu/internal/render"
	lifecore "lifegpu/pkg/core"
)

// RunOptions controls a headless run.
type RunOptions struct {
	Ticks int
	// Realtime paces ticks with the session interval instead of running
	// them back to back.
	Realtime bool
	// Every prints the population every N generations; zero prints only the
	// final line.
	Every int
	// Out, when set, receives a PNG of the final frame.
	Out string
	// Scale is the PNG size in pixels per cell.
	Scale int
}

// Run ticks the session and prints a population log to w. It stops early
// when ctx is cancelled or a tick fails.
func Run(ctx context.Context, s *Session, opts RunOptions, w io.Writer) error {
	var ticker *time.Ticker
	if opts.Realtime {
		ticker = time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
	}
	start := time.Now()
	if err := printPopulation(s, w); err != nil {
		return err
	}
	for i := 0; i < opts.Ticks; i++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Tick(); err != nil {
			return err
		}
		if opts.Every > 0 && s.Generation()%uint64(opts.Every) == 0 && i != opts.Ticks-1 {
			if err := printPopulation(s, w); err != nil {
				return err
			}
		}
	}
	if err := printPopulation(s, w); err != nil {
		return err
	}
	lifecore.Logger().Info("run finished", "generations", s.Generation(), "elapsed", time.Since(start))
	if opts.Out != "" {
		return writeFrame(s, opts.Out, opts.Scale)
	}
	return nil
}

func printPopulation(s *Session, w io.Writer) error {
	pop, err := s.Population()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "generation %d population %d\n", s.Generation(), pop)
	return err
}

func writeFrame(s *Session, path string, scale int) error {
	if scale <= 0 {
		scale = 1
	}
	size := s.Size()
	img, err := render.Capture(s.Device(), size.W*scale, size.H*scale)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.WritePNG(f, img); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
