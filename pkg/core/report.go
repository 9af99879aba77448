package core

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Severity grades a reported failure.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	// SeverityFatal means the simulation instance cannot continue; the caller
	// should stop its tick timer.
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Level maps the severity onto a slog level.
func (s Severity) Level() slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Reporter receives failures from the core. The core never owns a display
// surface; callers decide where messages go.
type Reporter func(message string, severity Severity)

// LogReporter adapts a slog.Logger into a Reporter.
func LogReporter(l *slog.Logger) Reporter {
	if l == nil {
		l = Logger()
	}
	return func(message string, severity Severity) {
		l.Log(context.Background(), severity.Level(), message, "severity", severity.String())
	}
}

// nopHandler discards all records. Enabled returns false so message
// formatting is skipped entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger shared by every lifegpu package. By default
// nothing is logged. Passing nil restores the silent default.
//
// Levels in use:
//   - Debug: buffer sizes, dispatch counts, per-tick details
//   - Info: device selection and simulation lifecycle
//   - Warn: degraded paths such as missing readback support
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current shared logger.
func Logger() *slog.Logger { return loggerPtr.Load() }
