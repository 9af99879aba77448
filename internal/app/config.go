package app

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"lifegpu/internal/core"
	"lifegpu/internal/device"
	"lifegpu/internal/pipeline"
	lifecore "lifegpu/pkg/core"
	"lifegpu/pkg/sims/life"
)

// Config represents the command-line parameters for the application.
type Config struct {
	Width, Height   int
	Interval        time.Duration
	Seed            int64
	Fill            string
	Pattern         string
	Scale           int
	Device          string
	Workgroup       uint
	Margin          float64
	LogLevel        string
	ValidateShaders bool
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Width:     64,
		Height:    64,
		Interval:  core.DefaultInterval,
		Seed:      42,
		Fill:      string(lifecore.FillSeeded),
		Scale:     8,
		Device:    "cpu",
		Workgroup: pipeline.DefaultWorkgroupSize,
		Margin:    pipeline.DefaultMargin,
		LogLevel:  "info",
	}
}

// Bind attaches the configuration to the provided FlagSet.
func (c *Config) Bind(fs *flag.FlagSet) {
	fs.IntVar(&c.Width, "w", c.Width, "grid width in cells")
	fs.IntVar(&c.Height, "h", c.Height, "grid height in cells")
	fs.DurationVar(&c.Interval, "interval", c.Interval, "time between generations")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "seed for the random fill")
	fs.StringVar(&c.Fill, "fill", c.Fill, "initial fill: seeded, random or empty")
	fs.StringVar(&c.Pattern, "pattern", c.Pattern, "named pattern placed at the center ("+strings.Join(life.Patterns(), ", ")+")")
	fs.IntVar(&c.Scale, "scale", c.Scale, "pixels per cell")
	fs.StringVar(&c.Device, "device", c.Device, "device to run on ("+strings.Join(device.Names(), ", ")+")")
	fs.UintVar(&c.Workgroup, "workgroup", c.Workgroup, "compute workgroup size in words")
	fs.Float64Var(&c.Margin, "margin", c.Margin, "cell quad size relative to the cell, (0, 1]")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn or error")
	fs.BoolVar(&c.ValidateShaders, "validate-shaders", c.ValidateShaders, "compile every kernel with naga even on the cpu device")
}

// Validate reports configuration errors before any device work starts.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", lifecore.ErrInvalidDimension, c.Width, c.Height)
	}
	if c.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %d", c.Scale)
	}
	if c.Workgroup == 0 {
		return fmt.Errorf("workgroup size must be positive")
	}
	if c.Margin <= 0 || c.Margin > 1 {
		return fmt.Errorf("margin %v outside (0, 1]", c.Margin)
	}
	if c.Pattern != "" {
		if _, err := life.Lookup(c.Pattern); err != nil {
			return err
		}
	} else if _, err := lifecore.FillStrategy(c.Fill).Filler(c.Seed); err != nil {
		return err
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

// Pipeline converts the flags into a simulation config.
func (c *Config) Pipeline(report lifecore.Reporter) pipeline.Config {
	return pipeline.Config{
		Width:         c.Width,
		Height:        c.Height,
		WorkgroupSize: uint32(c.Workgroup),
		Margin:        float32(c.Margin),
		Seed:          c.Seed,
		Fill:          lifecore.FillStrategy(c.Fill),
		Pattern:       c.Pattern,
		Reporter:      report,
	}
}

// DeviceOptions sizes the device for a window of Width*Scale by
// Height*Scale pixels.
func (c *Config) DeviceOptions() device.Options {
	return device.Options{
		Label:           c.Device,
		Width:           c.Width * c.Scale,
		Height:          c.Height * c.Scale,
		ValidateShaders: c.ValidateShaders,
	}
}

func (c *Config) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return lvl, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Logger builds a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	lvl, err := c.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
