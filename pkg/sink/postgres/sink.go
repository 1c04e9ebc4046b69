// Package postgres provides a PostgreSQL sink for completed sessions.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/log-sessionizer/pkg/session"
	"github.com/txn2/log-sessionizer/pkg/sink"
)

const (
	defaultBatchSize = 500

	// maxBindParams is PostgreSQL's limit on parameters per statement.
	maxBindParams = 65535
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sessionColumns lists columns written per session, in bind order.
var sessionColumns = []string{
	"run_id", "emitted_seq", "identifier", "first_seen", "last_seen",
	"duration_seconds", "hit_count",
}

// Config configures the PostgreSQL sink.
type Config struct {
	// RunID tags every row written by this sink.
	RunID string

	// BatchSize is the number of sessions buffered per INSERT.
	BatchSize int
}

// Sink writes sessions to the sessions table in multi-row batches.
type Sink struct {
	db        *sql.DB
	runID     string
	batchSize int
	pending   []session.Session
	emitted   int64
}

// New creates a new PostgreSQL session sink.
func New(db *sql.DB, cfg Config) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if maxRows := maxBindParams / len(sessionColumns); cfg.BatchSize > maxRows {
		cfg.BatchSize = maxRows
	}
	return &Sink{
		db:        db,
		runID:     cfg.RunID,
		batchSize: cfg.BatchSize,
		pending:   make([]session.Session, 0, cfg.BatchSize),
	}
}

// Write buffers s, inserting the batch once it is full.
func (s *Sink) Write(ctx context.Context, sess session.Session) error {
	s.pending = append(s.pending, sess)
	if len(s.pending) >= s.batchSize {
		return s.Flush(ctx)
	}
	return nil
}

// Flush inserts every buffered session.
func (s *Sink) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	qb := psq.Insert("sessions").Columns(sessionColumns...)
	seq := s.emitted
	for _, sess := range s.pending {
		seq++
		qb = qb.Values(
			s.runID,
			seq,
			sess.ID,
			sess.FirstSeen,
			sess.LastSeen,
			sess.Duration(),
			sess.Hits,
		)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return fmt.Errorf("building session insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting %d sessions: %w", len(s.pending), err)
	}

	s.emitted = seq
	s.pending = s.pending[:0]
	return nil
}

// Close drops any unflushed sessions. The database handle is owned by the
// caller and stays open.
func (s *Sink) Close() error {
	s.pending = nil
	return nil
}

// Written returns the number of sessions inserted so far.
func (s *Sink) Written() int64 {
	return s.emitted
}

// Verify interface compliance.
var _ sink.Sink = (*Sink)(nil)
