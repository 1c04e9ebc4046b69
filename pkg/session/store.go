package session

import (
	"cmp"
	"slices"
	"time"
)

// Store maps identifiers to their active sessions.
//
// A Store is owned by a single engine and is not safe for concurrent use.
// Memory is bounded by the number of sessions that have not yet expired.
type Store struct {
	sessions map[string]*Session
	nextSeq  uint64
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Get returns a copy of the active session for id.
func (s *Store) Get(id string) (Session, bool) {
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Upsert records an event for id at ts. The first event for an identifier
// opens a session; later events extend it and bump its hit count.
func (s *Store) Upsert(id string, ts time.Time) {
	if sess, ok := s.sessions[id]; ok {
		sess.LastSeen = ts
		sess.Hits++
		return
	}

	s.sessions[id] = &Session{
		ID:        id,
		FirstSeen: ts,
		LastSeen:  ts,
		Hits:      1,
		seq:       s.nextSeq,
	}
	s.nextSeq++
}

// Sweep removes and returns every session that has been idle for at least
// threshold as of ref. When flushAll is set every session is removed
// regardless of idle time.
//
// Returned sessions are ordered by creation, oldest first.
func (s *Store) Sweep(ref time.Time, threshold time.Duration, flushAll bool) []Session {
	var expired []Session
	for id, sess := range s.sessions {
		if flushAll || sess.Idle(ref) >= threshold {
			expired = append(expired, *sess)
			delete(s.sessions, id)
		}
	}

	slices.SortFunc(expired, func(a, b Session) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return expired
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	return len(s.sessions)
}
