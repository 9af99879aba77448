package app

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"

	lifecore "lifegpu/pkg/core"
)

func TestBindParsesFlags(t *testing.T) {
	cfg := NewConfig()
	fs := flag.NewFlagSet("life", flag.ContinueOnError)
	cfg.Bind(fs)
	args := []string{"-w", "20", "-h", "10", "-interval", "50ms", "-pattern", "glider", "-workgroup", "32", "-device", "cpu"}
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 20 || cfg.Height != 10 || cfg.Interval != 50*time.Millisecond || cfg.Pattern != "glider" || cfg.Workgroup != 32 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	pc := cfg.Pipeline(nil)
	if pc.Width != 20 || pc.Height != 10 || pc.WorkgroupSize != 32 || pc.Pattern != "glider" {
		t.Fatalf("unexpected pipeline config %+v", pc)
	}
	if opts := cfg.DeviceOptions(); opts.Width != 20*cfg.Scale || opts.Height != 10*cfg.Scale {
		t.Fatalf("unexpected device options %+v", opts)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero width", func(c *Config) { c.Width = 0 }, lifecore.ErrInvalidDimension},
		{"negative height", func(c *Config) { c.Height = -3 }, lifecore.ErrInvalidDimension},
		{"zero scale", func(c *Config) { c.Scale = 0 }, nil},
		{"zero workgroup", func(c *Config) { c.Workgroup = 0 }, nil},
		{"margin too large", func(c *Config) { c.Margin = 1.5 }, nil},
		{"unknown fill", func(c *Config) { c.Fill = "striped" }, nil},
		{"unknown pattern", func(c *Config) { c.Pattern = "spaceship" }, nil},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLoggerHonoursLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.LogLevel = "warn"
	var buf bytes.Buffer
	log := cfg.Logger(&buf)
	log.Info("hidden")
	log.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected log output %q", out)
	}
}
