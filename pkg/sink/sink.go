// Package sink provides destinations for completed sessions.
package sink

import (
	"context"
	"errors"

	"github.com/txn2/log-sessionizer/pkg/session"
)

// Sink receives sessions as they are evicted from the store.
type Sink interface {
	// Write records one completed session.
	Write(ctx context.Context, s session.Session) error

	// Flush pushes buffered sessions to the underlying destination.
	Flush(ctx context.Context) error

	// Close releases resources. It does not flush.
	Close() error
}

// Multi fans every session out to a fixed list of sinks.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a sink writing to each of sinks in order.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Write writes s to every sink, stopping at the first failure.
func (m *Multi) Write(ctx context.Context, s session.Session) error {
	for _, sk := range m.sinks {
		if err := sk.Write(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes every sink and joins their errors.
func (m *Multi) Flush(ctx context.Context) error {
	var errs []error
	for _, sk := range m.sinks {
		errs = append(errs, sk.Flush(ctx))
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, sk := range m.sinks {
		errs = append(errs, sk.Close())
	}
	return errors.Join(errs...)
}

// Verify interface compliance.
var _ Sink = (*Multi)(nil)
