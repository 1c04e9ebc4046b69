package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/txn2/log-sessionizer/pkg/accesslog"
	"github.com/txn2/log-sessionizer/pkg/session"
)

// CSVWriter writes one line per session:
//
//	id,first_seen,last_seen,duration_seconds,hits
//
// Fields are joined as-is; identifiers are never quoted or escaped.
type CSVWriter struct {
	w      *bufio.Writer
	closer io.Closer
	line   []byte
}

// NewCSVWriter creates a CSVWriter over w. If w is also an io.Closer it is
// closed by Close.
func NewCSVWriter(w io.Writer) *CSVWriter {
	c := &CSVWriter{w: bufio.NewWriter(w)}
	if closer, ok := w.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

// Write appends one session line.
func (c *CSVWriter) Write(_ context.Context, s session.Session) error {
	c.line = append(c.line[:0], s.ID...)
	c.line = append(c.line, ',')
	c.line = append(c.line, accesslog.FormatTimestamp(s.FirstSeen)...)
	c.line = append(c.line, ',')
	c.line = append(c.line, accesslog.FormatTimestamp(s.LastSeen)...)
	c.line = append(c.line, ',')
	c.line = strconv.AppendInt(c.line, s.Duration(), 10)
	c.line = append(c.line, ',')
	c.line = strconv.AppendInt(c.line, int64(s.Hits), 10)
	c.line = append(c.line, '\n')

	if _, err := c.w.Write(c.line); err != nil {
		return fmt.Errorf("writing session %s: %w", s.ID, err)
	}
	return nil
}

// Flush writes buffered lines to the underlying writer.
func (c *CSVWriter) Flush(_ context.Context) error {
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("flushing sessions: %w", err)
	}
	return nil
}

// Close closes the underlying writer when it is closable.
func (c *CSVWriter) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Verify interface compliance.
var _ Sink = (*CSVWriter)(nil)
