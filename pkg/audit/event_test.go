package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
)

const eventTestPeriod = 2 * time.Second

func TestNewRun(t *testing.T) {
	run := NewRun("log.csv", "sessionization.txt", eventTestPeriod)

	if _, err := uuid.Parse(run.ID); err != nil {
		t.Errorf("ID %q is not a UUID: %v", run.ID, err)
	}
	if run.StartedAt.IsZero() {
		t.Error("StartedAt should not be zero")
	}
	if run.Input != "log.csv" || run.Output != "sessionization.txt" {
		t.Errorf("unexpected locations: %q -> %q", run.Input, run.Output)
	}
	if run.InactivityPeriod != eventTestPeriod {
		t.Errorf("InactivityPeriod = %s, want %s", run.InactivityPeriod, eventTestPeriod)
	}
	if run.Duration() != 0 {
		t.Error("unfinished run should report zero duration")
	}
}

func TestRun_FinishSuccess(t *testing.T) {
	run := NewRun("in", "out", eventTestPeriod).WithCounts(9, 5, 4).Finish(nil)

	if !run.Success {
		t.Error("Success should be true")
	}
	if run.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", run.ErrorMessage)
	}
	if run.Events != 9 || run.Sessions != 5 || run.PeakActive != 4 {
		t.Errorf("counts = %d/%d/%d, want 9/5/4", run.Events, run.Sessions, run.PeakActive)
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Error("FinishedAt precedes StartedAt")
	}
}

func TestRun_FinishFailure(t *testing.T) {
	run := NewRun("in", "out", eventTestPeriod).Finish(errors.New("malformed timestamp"))

	if run.Success {
		t.Error("Success should be false")
	}
	if run.ErrorMessage != "malformed timestamp" {
		t.Errorf("ErrorMessage = %q", run.ErrorMessage)
	}
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	run := NewRun("in", "out", eventTestPeriod).WithCounts(3, 2, 2).Finish(nil)
	if err := logger.Log(context.Background(), *run); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"sessionization run complete", "run_id=" + run.ID, "sessions=2", "level=INFO"} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}

	buf.Reset()
	failed := NewRun("in", "out", eventTestPeriod).Finish(errors.New("boom"))
	_ = logger.Log(context.Background(), *failed)
	if !bytes.Contains(buf.Bytes(), []byte("level=ERROR")) || !bytes.Contains(buf.Bytes(), []byte("error=boom")) {
		t.Errorf("failed run not logged at error level: %s", buf.String())
	}
}

type recordingLogger struct {
	logged int
	err    error
	closed bool
}

func (r *recordingLogger) Log(_ context.Context, _ Run) error {
	r.logged++
	return r.err
}

func (r *recordingLogger) Close() error {
	r.closed = true
	return r.err
}

func TestMulti(t *testing.T) {
	failing := &recordingLogger{err: errors.New("db down")}
	ok := &recordingLogger{}
	m := Multi{failing, ok}

	if err := m.Log(context.Background(), Run{}); err == nil {
		t.Error("Multi.Log should surface the first error")
	}
	if ok.logged != 1 {
		t.Error("every logger should receive the run")
	}
	if err := m.Close(); err == nil {
		t.Error("Multi.Close should surface the first error")
	}
	if !ok.closed {
		t.Error("every logger should be closed")
	}
}
