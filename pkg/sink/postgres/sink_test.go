package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/log-sessionizer/pkg/session"
)

const testRunID = "2f1b7c1e-9f5a-4d52-9a43-6d1f3f0e8a11"

var testT0 = time.Date(2017, time.June, 30, 0, 0, 0, 0, time.UTC)

func testSession(id string, firstSec, lastSec, hits int) session.Session {
	return session.Session{
		ID:        id,
		FirstSeen: testT0.Add(time.Duration(firstSec) * time.Second),
		LastSeen:  testT0.Add(time.Duration(lastSec) * time.Second),
		Hits:      hits,
	}
}

func sessionArgs(seq int64, s session.Session) []driver.Value {
	return []driver.Value{testRunID, seq, s.ID, s.FirstSeen, s.LastSeen, s.Duration(), s.Hits}
}

func TestNew(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	t.Run("custom batch size", func(t *testing.T) {
		s := New(db, Config{RunID: testRunID, BatchSize: 10})
		assert.Equal(t, 10, s.batchSize)
		assert.Equal(t, testRunID, s.runID)
	})

	t.Run("default batch size when zero", func(t *testing.T) {
		s := New(db, Config{})
		assert.Equal(t, defaultBatchSize, s.batchSize)
	})

	t.Run("batch size capped by bind parameter limit", func(t *testing.T) {
		s := New(db, Config{BatchSize: 1_000_000})
		assert.Equal(t, maxBindParams/len(sessionColumns), s.batchSize)
	})
}

func TestSink_FlushInsertsBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := New(db, Config{RunID: testRunID, BatchSize: 10})
	a := testSession("101.81.133.jja", 0, 0, 1)
	b := testSession("107.23.85.jfd", 0, 4, 5)

	args := append(sessionArgs(1, a), sessionArgs(2, b)...)
	mock.ExpectExec(`INSERT INTO sessions \(run_id,emitted_seq,identifier,first_seen,last_seen,duration_seconds,hit_count\) VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7\),\(\$8`).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 2))

	ctx := context.Background()
	require.NoError(t, s.Write(ctx, a))
	require.NoError(t, s.Write(ctx, b))
	require.NoError(t, s.Flush(ctx))

	assert.Equal(t, int64(2), s.Written())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_WriteFlushesFullBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := New(db, Config{RunID: testRunID, BatchSize: 2})
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sessionArgs(3, testSession("c", 2, 2, 1))...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Write(ctx, testSession("a", 0, 0, 1)))
	require.NoError(t, s.Write(ctx, testSession("b", 1, 1, 1)))
	require.NoError(t, s.Write(ctx, testSession("c", 2, 2, 1)))
	require.NoError(t, s.Flush(ctx))

	assert.Equal(t, int64(3), s.Written())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_FlushEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := New(db, Config{RunID: testRunID})
	assert.NoError(t, s.Flush(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_FlushError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := New(db, Config{RunID: testRunID})
	mock.ExpectExec("INSERT INTO sessions").WillReturnError(errors.New("connection reset"))

	require.NoError(t, s.Write(context.Background(), testSession("a", 0, 0, 1)))
	err = s.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting 1 sessions")
	assert.Equal(t, int64(0), s.Written())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := New(db, Config{RunID: testRunID})
	require.NoError(t, s.Write(context.Background(), testSession("a", 0, 0, 1)))
	assert.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet(), "Close must not write")
}
