package sessionize

import (
	"context"
	"io"
	"time"

	"github.com/txn2/log-sessionizer/pkg/accesslog"
	"github.com/txn2/log-sessionizer/pkg/session"
	"github.com/txn2/log-sessionizer/pkg/sink"
)

// SliceSource yields events from an in-memory slice.
type SliceSource struct {
	events []accesslog.Event
	next   int
}

// NewSliceSource creates a Source over events.
func NewSliceSource(events []accesslog.Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next returns the next event or io.EOF.
func (s *SliceSource) Next() (accesslog.Event, error) {
	if s.next >= len(s.events) {
		return accesslog.Event{}, io.EOF
	}
	ev := s.events[s.next]
	s.next++
	return ev, nil
}

// Sessionize runs events through a fresh engine and returns the completed
// sessions in emission order. Input must be sorted by timestamp.
func Sessionize(events []accesslog.Event, inactivity time.Duration) ([]session.Session, error) {
	engine, err := New(Config{InactivityPeriod: inactivity, RequireSorted: true})
	if err != nil {
		return nil, err
	}

	out := &sink.Collector{}
	if _, err := engine.Run(context.Background(), NewSliceSource(events), out); err != nil {
		return nil, err
	}
	return out.Sessions(), nil
}

// Verify interface compliance.
var (
	_ Source = (*SliceSource)(nil)
	_ Source = (*accesslog.Reader)(nil)
)
