// Command life-run advances a simulation without a window and prints a
// population log, optionally pacing ticks in real time and saving the final
// frame as a PNG.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"lifegpu/internal/app"
	"lifegpu/pkg/core"
)

type kvList []string

func (l *kvList) String() string {
	return strings.Join(*l, ",")
}

func (l *kvList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

func main() {
	cfg := app.NewConfig()
	cfg.Bind(flag.CommandLine)
	ticks := flag.Int("ticks", 100, "generations to advance")
	realtime := flag.Bool("realtime", false, "pace generations with -interval")
	every := flag.Int("every", 10, "print the population every N generations (0 for first and last only)")
	out := flag.String("out", "", "write the final frame to this PNG file")
	var overrides kvList
	flag.Var(&overrides, "set", "flag override in key=value form, applied after the other flags (repeatable)")
	flag.Parse()

	for _, kv := range overrides {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			usageError("override %q is not key=value", kv)
		}
		if err := flag.Set(key, value); err != nil {
			usageError("override %q: %v", kv, err)
		}
	}
	logger := cfg.Logger(os.Stderr)
	core.SetLogger(logger)

	// NewSession reports its own failures through the logger.
	session, err := app.NewSession(cfg, core.LogReporter(logger))
	if err != nil {
		os.Exit(1)
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("%dx%d on %s, %d generations\n", cfg.Width, cfg.Height, session.Device().Name(), *ticks)
	opts := app.RunOptions{Ticks: *ticks, Realtime: *realtime, Every: *every, Out: *out, Scale: cfg.Scale}
	if err := app.Run(ctx, session, opts, os.Stdout); err != nil {
		logger.Error("run failed", "generation", session.Generation(), "err", err)
		session.Close()
		os.Exit(1)
	}
}

func usageError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	flag.Usage()
	os.Exit(2)
}
