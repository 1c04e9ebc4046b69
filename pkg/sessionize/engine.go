// Package sessionize reconstructs user sessions from a time-ordered stream
// of access events in a single pass.
//
// Events sharing one timestamp form a batch. When the timestamp changes the
// previous batch is complete, so the store is swept with the previous batch
// time as the reference and every session idle for at least the inactivity
// period is emitted. Once input is exhausted every remaining session is
// flushed. Sessions are therefore only ever expired relative to event time,
// never wall-clock time.
package sessionize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/txn2/log-sessionizer/pkg/accesslog"
	"github.com/txn2/log-sessionizer/pkg/session"
	"github.com/txn2/log-sessionizer/pkg/sink"
)

// ErrOutOfOrder reports an event whose timestamp is earlier than the batch
// before it. Input must be sorted by timestamp.
var ErrOutOfOrder = errors.New("out-of-order event")

// Source yields events in timestamp order. Next returns io.EOF when there
// are no more events.
type Source interface {
	Next() (accesslog.Event, error)
}

// Config configures an Engine.
type Config struct {
	// InactivityPeriod is how long a session may be idle before it ends.
	// Whole seconds; must be positive.
	InactivityPeriod time.Duration

	// RequireSorted rejects input whose timestamps decrease. When false a
	// decrease is treated like any other timestamp change.
	RequireSorted bool
}

// Stats summarizes one run.
type Stats struct {
	Events     int
	Batches    int
	Sweeps     int
	Sessions   int
	PeakActive int
}

// Engine drives the session store from a Source. An Engine may be reused
// for several runs but must not be shared between goroutines.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	store     *session.Store
	batchTime time.Time
	started   bool
	stats     Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for sweep diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.InactivityPeriod < time.Second {
		return nil, fmt.Errorf("inactivity period must be at least 1s, got %s", cfg.InactivityPeriod)
	}
	if cfg.InactivityPeriod%time.Second != 0 {
		return nil, fmt.Errorf("inactivity period must be whole seconds, got %s", cfg.InactivityPeriod)
	}

	e := &Engine{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run consumes src until io.EOF, writing every completed session to out
// exactly once. out is neither flushed nor closed.
func (e *Engine) Run(ctx context.Context, src Source, out sink.Sink) (Stats, error) {
	e.reset()

	for {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return e.stats, fmt.Errorf("reading event %d: %w", e.stats.Events+1, err)
		}

		if err := e.observe(ctx, ev, out); err != nil {
			return e.stats, err
		}
	}

	if !e.started {
		return e.stats, nil
	}
	if err := e.sweep(ctx, true, out); err != nil {
		return e.stats, err
	}
	return e.stats, nil
}

func (e *Engine) reset() {
	e.store = session.NewStore()
	e.batchTime = time.Time{}
	e.started = false
	e.stats = Stats{}
}

// observe applies one event, sweeping first when it opens a new batch.
func (e *Engine) observe(ctx context.Context, ev accesslog.Event, out sink.Sink) error {
	e.stats.Events++

	switch {
	case !e.started:
		e.started = true
		e.batchTime = ev.Timestamp
		e.stats.Batches++
	case !ev.Timestamp.Equal(e.batchTime):
		if e.cfg.RequireSorted && ev.Timestamp.Before(e.batchTime) {
			return fmt.Errorf("event %d: %w: %s at %s follows %s", e.stats.Events, ErrOutOfOrder,
				ev.ID, accesslog.FormatTimestamp(ev.Timestamp), accesslog.FormatTimestamp(e.batchTime))
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.sweep(ctx, false, out); err != nil {
			return err
		}
		e.batchTime = ev.Timestamp
		e.stats.Batches++
	}

	e.store.Upsert(ev.ID, ev.Timestamp)
	e.stats.PeakActive = max(e.stats.PeakActive, e.store.Len())
	return nil
}

// sweep evicts expired sessions relative to the current batch time and
// writes them to out.
func (e *Engine) sweep(ctx context.Context, flushAll bool, out sink.Sink) error {
	e.stats.Sweeps++
	expired := e.store.Sweep(e.batchTime, e.cfg.InactivityPeriod, flushAll)

	for _, s := range expired {
		if err := out.Write(ctx, s); err != nil {
			return fmt.Errorf("emitting session %s: %w", s.ID, err)
		}
	}
	e.stats.Sessions += len(expired)

	if len(expired) > 0 {
		e.logger.Debug("sessions expired",
			"reference", accesslog.FormatTimestamp(e.batchTime),
			"expired", len(expired),
			"active", e.store.Len(),
			"flush", flushAll)
	}
	return nil
}
