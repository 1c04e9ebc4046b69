package accesslog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	fieldID = iota
	fieldDate
	fieldTime
	minFields
)

// Reader streams events from a comma-separated access log. The first record
// is a header and is skipped. Only the identifier, date and time columns are
// read; any further columns are ignored.
type Reader struct {
	csv        *csv.Reader
	headerRead bool
}

// NewReader creates a Reader over r. Identifiers are opaque, so a quote
// inside an unquoted field is kept as a literal character.
func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.LazyQuotes = true
	return &Reader{csv: cr}
}

// Next returns the next event. It returns io.EOF once the log is exhausted,
// including when the log holds nothing but a header or is empty.
func (r *Reader) Next() (Event, error) {
	if !r.headerRead {
		r.headerRead = true
		if _, err := r.read(); err != nil {
			return Event{}, err
		}
	}

	record, err := r.read()
	if err != nil {
		return Event{}, err
	}

	line, _ := r.csv.FieldPos(0)
	if len(record) < minFields {
		return Event{}, fmt.Errorf("line %d: %w: want at least %d fields, got %d",
			line, ErrMalformedRecord, minFields, len(record))
	}

	id := strings.TrimSpace(record[fieldID])
	if id == "" {
		return Event{}, fmt.Errorf("line %d: %w: empty identifier", line, ErrMalformedRecord)
	}

	ts, err := ParseTimestamp(record[fieldDate], record[fieldTime])
	if err != nil {
		return Event{}, fmt.Errorf("line %d: %w", line, err)
	}

	return Event{ID: id, Timestamp: ts}, nil
}

func (r *Reader) read() ([]string, error) {
	record, err := r.csv.Read()
	if err == nil {
		return record, nil
	}
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
}
