// Package accesslog reads time-ordered access log records and turns them
// into sessionization events.
package accesslog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the layout of a combined date and time field.
const TimestampLayout = "2006-01-02 15:04:05"

// Error kinds reported while reading a log. Both are fatal to a run.
var (
	// ErrMalformedTimestamp reports date/time fields that cannot be parsed.
	ErrMalformedTimestamp = errors.New("malformed timestamp")

	// ErrMalformedRecord reports a record that is missing required fields.
	ErrMalformedRecord = errors.New("malformed record")
)

// Event is one access log record.
type Event struct {
	ID        string
	Timestamp time.Time
}

// ParseTimestamp combines a date (YYYY-MM-DD) and a time (HH:MM:SS) into a
// UTC timestamp with whole-second resolution.
func ParseTimestamp(date, clock string) (time.Time, error) {
	raw := strings.TrimSpace(date) + " " + strings.TrimSpace(clock)
	ts, err := time.ParseInLocation(TimestampLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, raw)
	}
	return ts, nil
}

// FormatTimestamp renders ts in the layout used by session output.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(TimestampLayout)
}
