// Package audit records one summary per sessionization run.
package audit

import (
	"context"
	"time"
)

// Logger defines the interface for run audit logging.
type Logger interface {
	// Log records a finished run.
	Log(ctx context.Context, run Run) error

	// Close releases resources.
	Close() error
}

// Run describes one sessionization run.
type Run struct {
	ID               string        `json:"id"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	Input            string        `json:"input"`
	Output           string        `json:"output"`
	InactivityPeriod time.Duration `json:"inactivity_period"`
	Events           int           `json:"events"`
	Sessions         int           `json:"sessions"`
	PeakActive       int           `json:"peak_active"`
	Success          bool          `json:"success"`
	ErrorMessage     string        `json:"error_message,omitempty"`
}

