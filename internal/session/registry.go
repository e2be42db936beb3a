// Package session owns the coach-created class sessions and enforces that at
// most one of them is active at any time.
package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("session not found")
	ErrActiveSessionExists = errors.New("another session is already active")
	ErrSessionEnded        = errors.New("session has ended")
	ErrInvalidName         = errors.New("session name is required")
)

// Repository persists session records. Implementations must be safe for
// concurrent use.
type Repository interface {
	SaveSession(ctx context.Context, s Session) error
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]Session, error)
}

// Registry holds every known session. Writes go through to the repository
// first; a failed write leaves the in-memory state untouched.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	activeID string
	repo     Repository

	now   func() time.Time
	newID func() string

	events      chan<- Event // nil disables event emission
	eventsMu    sync.Mutex
	dropped     int64
	lastDropLog time.Time
}

// NewRegistry creates an empty registry. repo may be nil for a purely
// in-memory registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		repo:     repo,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetEvents configures a channel for lifecycle events. Sends never block;
// events are dropped when the channel is full. Pass nil to disable.
func (r *Registry) SetEvents(ch chan<- Event) {
	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()
	r.events = ch
}

// Load replaces the in-memory state with the repository contents. If storage
// holds several active sessions only the newest stays active and the others
// are ended.
func (r *Registry) Load(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	stored, err := r.repo.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("loading sessions: %w", err)
	}

	slices.SortFunc(stored, func(a, b Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions = make(map[string]Session, len(stored))
	r.activeID = ""
	for _, s := range stored {
		s = s.Clone()
		s.Roster = normalizeRoster(s.Roster)
		if s.Active {
			if r.activeID == "" {
				r.activeID = s.ID
			} else {
				log.Printf("Ending stale active session %s (%q): %s is newer", s.ID, s.Name, r.activeID)
				s.Active = false
				if err := r.repo.SaveSession(ctx, s); err != nil {
					return fmt.Errorf("ending stale session %s: %w", s.ID, err)
				}
			}
		}
		r.sessions[s.ID] = s
	}
	return nil
}

// Create starts a new active session. It fails with ErrActiveSessionExists
// while another session is active; the caller must end that one first.
func (r *Registry) Create(ctx context.Context, name string, roster []string) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeID != "" {
		return Session{}, fmt.Errorf("%w: %s", ErrActiveSessionExists, r.activeID)
	}

	s := Session{
		ID:        r.newID(),
		Name:      name,
		CreatedAt: r.now().UTC(),
		Roster:    normalizeRoster(roster),
		Active:    true,
	}
	if err := r.save(ctx, s); err != nil {
		return Session{}, err
	}
	r.sessions[s.ID] = s
	r.activeID = s.ID
	r.emit(EventCreated, s)
	return s.Clone(), nil
}

// Restore inserts a session record as-is, keeping its id and timestamps. It
// is used by processes that bind to a session created elsewhere. Restoring
// an active session while a different one is active fails.
func (r *Registry) Restore(s Session) error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrNotFound)
	}
	s = s.Clone()
	s.Roster = normalizeRoster(s.Roster)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s.Active && r.activeID != "" && r.activeID != s.ID {
		return fmt.Errorf("%w: %s", ErrActiveSessionExists, r.activeID)
	}
	r.sessions[s.ID] = s
	switch {
	case s.Active:
		r.activeID = s.ID
	case r.activeID == s.ID:
		r.activeID = ""
	}
	return nil
}

// SetRoster replaces the roster of an active session.
func (r *Registry) SetRoster(ctx context.Context, id string, roster []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !s.Active {
		return fmt.Errorf("%w: %s", ErrSessionEnded, id)
	}
	s = s.Clone()
	s.Roster = normalizeRoster(roster)
	if err := r.save(ctx, s); err != nil {
		return err
	}
	r.sessions[id] = s
	r.emit(EventRosterChanged, s)
	return nil
}

// End marks the session inactive. Ending an inactive session is a no-op.
func (r *Registry) End(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !s.Active {
		return nil
	}
	s = s.Clone()
	s.Active = false
	if err := r.save(ctx, s); err != nil {
		return err
	}
	r.sessions[id] = s
	if r.activeID == id {
		r.activeID = ""
	}
	r.emit(EventEnded, s)
	return nil
}

// Delete removes the session record. Live samples are not touched.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if r.repo != nil {
		if err := r.repo.DeleteSession(ctx, id); err != nil {
			return fmt.Errorf("deleting session %s: %w", id, err)
		}
	}
	delete(r.sessions, id)
	if r.activeID == id {
		r.activeID = ""
	}
	r.emit(EventDeleted, s)
	return nil
}

// Active returns the currently active session, if any.
func (r *Registry) Active() (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activeID == "" {
		return Session{}, false
	}
	return r.sessions[r.activeID].Clone(), true
}

func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.Clone(), true
}

// List returns all sessions, newest first.
func (r *Registry) List() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// ActiveCount returns the number of active sessions: 0 or 1.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, s := range r.sessions {
		if s.Active {
			count++
		}
	}
	return count
}

func (r *Registry) save(ctx context.Context, s Session) error {
	if r.repo == nil {
		return nil
	}
	if err := r.repo.SaveSession(ctx, s); err != nil {
		return fmt.Errorf("saving session %s: %w", s.ID, err)
	}
	return nil
}

// emit sends a lifecycle event without blocking. Drops are logged at most
// once per 10 seconds.
func (r *Registry) emit(t EventType, s Session) {
	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()
	if r.events == nil {
		return
	}
	select {
	case r.events <- Event{Type: t, Session: s.Clone()}:
	default:
		r.dropped++
		now := time.Now()
		if r.lastDropLog.IsZero() || now.Sub(r.lastDropLog) >= 10*time.Second {
			log.Printf("Session events dropped: %d (channel full)", r.dropped)
			r.dropped = 0
			r.lastDropLog = now
		}
	}
}
