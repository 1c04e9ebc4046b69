package audit

import (
	"time"

	"github.com/google/uuid"
)

// NewRun starts a run record.
func NewRun(input, output string, inactivity time.Duration) *Run {
	return &Run{
		ID:               uuid.NewString(),
		StartedAt:        time.Now().UTC(),
		Input:            input,
		Output:           output,
		InactivityPeriod: inactivity,
	}
}

// WithCounts records what the run processed.
func (r *Run) WithCounts(events, sessions, peakActive int) *Run {
	r.Events = events
	r.Sessions = sessions
	r.PeakActive = peakActive
	return r
}

// Finish stamps the run's end time and outcome.
func (r *Run) Finish(err error) *Run {
	r.FinishedAt = time.Now().UTC()
	r.Success = err == nil
	if err != nil {
		r.ErrorMessage = err.Error()
	}
	return r
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
