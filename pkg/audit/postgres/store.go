// Package postgres provides PostgreSQL storage for run audit records.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/log-sessionizer/pkg/audit"
)

const defaultRetentionDays = 90

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// runColumns lists columns written per run, in bind order.
var runColumns = []string{
	"id", "started_at", "finished_at", "input", "output",
	"inactivity_seconds", "events", "sessions", "peak_active",
	"success", "error_message",
}

// Store implements audit.Logger using PostgreSQL.
type Store struct {
	db            *sql.DB
	retentionDays int
}

// Config configures the PostgreSQL audit store.
type Config struct {
	RetentionDays int
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB, cfg Config) *Store {
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	return &Store{
		db:            db,
		retentionDays: cfg.RetentionDays,
	}
}

// Log records a finished run.
func (s *Store) Log(ctx context.Context, run audit.Run) error {
	var errMsg sql.NullString
	if run.ErrorMessage != "" {
		errMsg = sql.NullString{String: run.ErrorMessage, Valid: true}
	}

	query, args, err := psq.Insert("sessionization_runs").
		Columns(runColumns...).
		Values(
			run.ID,
			run.StartedAt,
			run.FinishedAt,
			run.Input,
			run.Output,
			int64(run.InactivityPeriod/time.Second),
			run.Events,
			run.Sessions,
			run.PeakActive,
			run.Success,
			errMsg,
		).ToSql()
	if err != nil {
		return fmt.Errorf("building run insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting run record: %w", err)
	}
	return nil
}

// Cleanup removes run records older than the retention period.
func (s *Store) Cleanup(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	query, args, err := psq.Delete("sessionization_runs").
		Where(sq.Lt{"started_at": cutoff}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building run cleanup: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("cleaning up run records: %w", err)
	}
	return nil
}

// Close is a no-op; the database handle is owned by the caller.
func (*Store) Close() error {
	return nil
}

// Verify interface compliance.
var _ audit.Logger = (*Store)(nil)
