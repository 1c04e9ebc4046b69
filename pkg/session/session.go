// Package session provides the active-session state used during
// sessionization. It defines the Session record and the in-memory Store
// that tracks one open session per identifier.
package session

import "time"

// Session represents one identifier's ongoing activity window.
type Session struct {
	// ID identifies the user (typically a source IP address). It never
	// changes after the session is created.
	ID string

	// FirstSeen is the timestamp of the session's first event.
	FirstSeen time.Time

	// LastSeen is the timestamp of the most recent event.
	LastSeen time.Time

	// Hits counts the events attributed to this session. Always >= 1.
	Hits int

	// seq orders sessions by creation within a Store.
	seq uint64
}

// Duration returns the session length in whole seconds, counting both
// endpoints. A single-event session lasts one second.
func (s Session) Duration() int64 {
	return int64(s.LastSeen.Sub(s.FirstSeen)/time.Second) + 1
}

// Idle returns how long the session has been inactive as of ref.
func (s Session) Idle(ref time.Time) time.Duration {
	return ref.Sub(s.LastSeen)
}
