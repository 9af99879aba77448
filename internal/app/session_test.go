package app

import (
	"errors"
	"slices"
	"strings"
	"testing"

	lifecore "lifegpu/pkg/core"
)

func newTestSession(t *testing.T, mutate func(*Config)) *Session {
	t.Helper()
	cfg := NewConfig()
	cfg.Width, cfg.Height = 12, 12
	if mutate != nil {
		mutate(cfg)
	}
	s, err := NewSession(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSessionTicksAndReportsParameters(t *testing.T) {
	s := newTestSession(t, func(c *Config) { c.Pattern = "blinker" })
	for i := 0; i < 3; i++ {
		if err := s.Tick(); err != nil {
			t.Fatal(err)
		}
	}
	if s.Generation() != 3 {
		t.Fatalf("generation %d", s.Generation())
	}
	params := s.Parameters()
	for key, want := range map[string]string{
		"generation": "3",
		"population": "3",
		"device":     "cpu",
		"initial":    "blinker",
		"status":     "running",
	} {
		p, ok := params.Lookup(key)
		if !ok || p.Value != want {
			t.Fatalf("%s = %q (found %v), want %q", key, p.Value, ok, want)
		}
	}
}

func TestSessionResetRestartsFromSeed(t *testing.T) {
	s := newTestSession(t, nil)
	first, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Tick(); err != nil {
		t.Fatal(err)
	}
	if err := s.Reset(s.cfg.Seed); err != nil {
		t.Fatal(err)
	}
	if s.Generation() != 0 {
		t.Fatalf("generation %d after reset", s.Generation())
	}
	again, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !again.Equal(first) {
		t.Fatal("reset with the same seed produced a different grid")
	}
}

func TestSessionUnknownDevice(t *testing.T) {
	cfg := NewConfig()
	cfg.Device = "quantum"
	var messages []string
	var severities []lifecore.Severity
	report := func(msg string, sev lifecore.Severity) {
		messages = append(messages, msg)
		severities = append(severities, sev)
	}
	if _, err := NewSession(cfg, report); !errors.Is(err, lifecore.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if !slices.Equal(severities, []lifecore.Severity{lifecore.SeverityFatal}) {
		t.Fatalf("reports %v, want one fatal", severities)
	}
	if !strings.Contains(messages[0], "quantum") {
		t.Fatalf("report %q does not name the device", messages[0])
	}
}

func TestSessionPipelineFailureReportedOnce(t *testing.T) {
	cfg := NewConfig()
	cfg.Workgroup = 1024
	var reports []lifecore.Severity
	_, err := NewSession(cfg, func(_ string, sev lifecore.Severity) { reports = append(reports, sev) })
	if err == nil {
		t.Fatal("expected workgroup size above the device limit to fail")
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
}
