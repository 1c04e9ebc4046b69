package sink

import (
	"context"

	"github.com/txn2/log-sessionizer/pkg/session"
)

// Collector keeps every session it receives in memory, in arrival order.
type Collector struct {
	sessions []session.Session
}

// Write appends s.
func (c *Collector) Write(_ context.Context, s session.Session) error {
	c.sessions = append(c.sessions, s)
	return nil
}

// Flush is a no-op; sessions are already held in memory.
func (*Collector) Flush(_ context.Context) error { return nil }

// Close is a no-op.
func (*Collector) Close() error { return nil }

// Sessions returns the collected sessions.
func (c *Collector) Sessions() []session.Session {
	return c.sessions
}

// Verify interface compliance.
var _ Sink = (*Collector)(nil)
