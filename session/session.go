package session

import (
	"sync"
	"time"

	"github.com/ytwritergod/archivetoziptest/staging"
)

// Session is one user's live request. Apply calls are linearized by mu;
// staging and archive work happen outside it.
type Session struct {
	ID         string
	UserID     int64
	Generation uint64
	CreatedAt  time.Time
	Dir        *staging.Dir

	limits Limits

	mu         sync.Mutex
	data       Data
	lastActive time.Time
	superseded bool
}

// Apply runs one event through Step and commits the result.
func (s *Session) Apply(ev Event, now time.Time) (State, []Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, effects, err := Step(s.data, ev, s.limits)
	s.lastActive = now
	if err != nil {
		return s.data.State, nil, err
	}
	s.data = next
	return s.data.State, effects, nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.State
}

// Snapshot returns a copy of the session data.
func (s *Session) Snapshot() Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

// Superseded reports whether a restart replaced this session while it
// was finalizing. A superseded session's output must not be delivered.
func (s *Session) Superseded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.superseded
}

// LastActive is when the session last received an event.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// retire takes the session out of service. A finalizing session is only
// marked superseded, and its pipeline removes the staging directory.
// Reports whether the caller must destroy the directory.
func (s *Session) retire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.data.State {
	case Destroyed:
		return false
	case Finalizing:
		s.superseded = true
		return false
	}
	s.data.State = Destroyed
	return true
}

// finish moves a finalizing session to Destroyed.
func (s *Session) finish() {
	s.mu.Lock()
	s.data.State = Destroyed
	s.mu.Unlock()
}

// expirable reports whether the session has been idle since before cutoff
// with no work in flight.
func (s *Session) expirable(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.State.Terminal() || s.data.Pending > 0 {
		return false
	}
	return s.lastActive.Before(cutoff)
}
