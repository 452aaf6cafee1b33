package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ytwritergod/archivetoziptest/staging"
	"github.com/ytwritergod/archivetoziptest/types"
)

// DefaultMaxSessions caps concurrently active sessions.
const DefaultMaxSessions = 64

// Options configures a Registry.
type Options struct {
	Area        *staging.Area
	MaxSessions int
	Limits      Limits
	// Now defaults to time.Now.
	Now func() time.Time
}

// Registry maps user IDs to their single active session.
// Lock order is Registry before Session; directory removal happens with
// neither lock held.
type Registry struct {
	area   *staging.Area
	max    int
	limits Limits
	now    func() time.Time

	mu         sync.Mutex
	sessions   map[int64]*Session
	generation uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		area:     opts.Area,
		max:      opts.MaxSessions,
		limits:   opts.Limits,
		now:      opts.Now,
		sessions: make(map[int64]*Session),
	}
}

// GetOrCreate returns the user's active session, creating an Idle one when
// there is none. created reports whether a new session was made.
func (r *Registry) GetOrCreate(userID int64) (s *Session, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[userID]; ok {
		return s, false, nil
	}
	s, err = r.createLocked(userID)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// Get returns the user's active session, or nil.
func (r *Registry) Get(userID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[userID]
}

// Restart retires the user's current session, if any, and creates a new
// Idle one in its place. old is the retired session.
func (r *Registry) Restart(userID int64) (s, old *Session, err error) {
	r.mu.Lock()
	old = r.sessions[userID]
	var destroy bool
	if old != nil {
		delete(r.sessions, userID)
		destroy = old.retire()
	}
	s, err = r.createLocked(userID)
	r.mu.Unlock()

	if destroy {
		err = errors.Join(err, old.Dir.Destroy())
	}
	return s, old, err
}

// Destroy retires and removes the user's session. It returns the removed
// session, or nil when there was none.
func (r *Registry) Destroy(userID int64) (*Session, error) {
	r.mu.Lock()
	s := r.sessions[userID]
	var destroy bool
	if s != nil {
		delete(r.sessions, userID)
		destroy = s.retire()
	}
	r.mu.Unlock()

	if destroy {
		return s, s.Dir.Destroy()
	}
	return s, nil
}

// Release ends a session whose pipeline has finished. The registry entry
// is removed only if it still refers to s, so a newer session for the
// same user is left alone. The staging directory is always removed.
func (r *Registry) Release(s *Session) error {
	r.mu.Lock()
	if r.sessions[s.UserID] == s {
		delete(r.sessions, s.UserID)
	}
	r.mu.Unlock()

	s.finish()
	return s.Dir.Destroy()
}

// Current returns the generation of the user's active session, or 0.
func (r *Registry) Current(userID int64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		return s.Generation
	}
	return 0
}

// Expire destroys sessions idle for longer than idle. Sessions that are
// finalizing or still receiving files are kept.
func (r *Registry) Expire(idle time.Duration) ([]*Session, error) {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var victims []*Session
	for id, s := range r.sessions {
		if !s.expirable(cutoff) {
			continue
		}
		delete(r.sessions, id)
		if s.retire() {
			victims = append(victims, s)
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range victims {
		errs = append(errs, s.Dir.Destroy())
	}
	return victims, errors.Join(errs...)
}

// Close destroys every session that is not finalizing. Used on shutdown.
func (r *Registry) Close() error {
	r.mu.Lock()
	var victims []*Session
	for id, s := range r.sessions {
		if s.retire() {
			delete(r.sessions, id)
			victims = append(victims, s)
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range victims {
		errs = append(errs, s.Dir.Destroy())
	}
	return errors.Join(errs...)
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Info is a read-only view of one session.
type Info struct {
	ID         string    `json:"session_id"`
	UserID     int64     `json:"user_id"`
	Generation uint64    `json:"generation"`
	State      string    `json:"state"`
	Files      int       `json:"files"`
	Bytes      int64     `json:"bytes"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Sessions returns a view of every active session ordered by user ID.
func (r *Registry) Sessions() []Info {
	r.mu.Lock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()

	out := make([]Info, 0, len(list))
	for _, s := range list {
		d := s.Snapshot()
		out = append(out, Info{
			ID:         s.ID,
			UserID:     s.UserID,
			Generation: s.Generation,
			State:      d.State.String(),
			Files:      len(d.Files),
			Bytes:      d.Bytes(),
			CreatedAt:  s.CreatedAt,
			LastActive: s.LastActive(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (r *Registry) createLocked(userID int64) (*Session, error) {
	if len(r.sessions) >= r.max {
		return nil, types.ResourceLimitError(
			fmt.Sprintf("🚫 Too many active sessions (%d). Try again later.", r.max))
	}

	r.generation++
	now := r.now()
	s := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		Generation: r.generation,
		CreatedAt:  now,
		limits:     r.limits,
		lastActive: now,
	}

	dir, err := r.area.Open(staging.Manifest{
		SessionID:  s.ID,
		UserID:     userID,
		Generation: s.Generation,
		CreatedAt:  now.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("open staging for user %d: %w", userID, err)
	}
	s.Dir = dir
	r.sessions[userID] = s
	return s, nil
}
