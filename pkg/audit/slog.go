package audit

import (
	"context"
	"log/slog"
)

// SlogLogger writes run records to a structured logger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a SlogLogger. A nil logger uses slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// Log logs run at info level, or error level when the run failed.
func (l *SlogLogger) Log(ctx context.Context, run Run) error {
	level := slog.LevelInfo
	msg := "sessionization run complete"
	if !run.Success {
		level = slog.LevelError
		msg = "sessionization run failed"
	}

	attrs := []slog.Attr{
		slog.String("run_id", run.ID),
		slog.String("input", run.Input),
		slog.String("output", run.Output),
		slog.Duration("inactivity_period", run.InactivityPeriod),
		slog.Int("events", run.Events),
		slog.Int("sessions", run.Sessions),
		slog.Int("peak_active", run.PeakActive),
		slog.Duration("elapsed", run.Duration()),
	}
	if run.ErrorMessage != "" {
		attrs = append(attrs, slog.String("error", run.ErrorMessage))
	}

	l.logger.LogAttrs(ctx, level, msg, attrs...)
	return nil
}

// Close is a no-op.
func (*SlogLogger) Close() error { return nil }

// Multi fans run records out to several loggers.
type Multi []Logger

// Log logs run to every logger, returning the first error.
func (m Multi) Log(ctx context.Context, run Run) error {
	var first error
	for _, l := range m {
		if err := l.Log(ctx, run); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every logger, returning the first error.
func (m Multi) Close() error {
	var first error
	for _, l := range m {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Verify interface compliance.
var (
	_ Logger = (*SlogLogger)(nil)
	_ Logger = Multi(nil)
)
