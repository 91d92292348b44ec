package workflow

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionForbidden = errors.New("session belongs to another user")
)

// Factory builds the controller for a new session.
type Factory func() *Controller

type session struct {
	ctrl     *Controller
	owner    string
	lastSeen time.Time
}

// Registry tracks live sessions by id. All operations are thread-safe.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	factory  Factory
	now      func() time.Time
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		factory:  factory,
		now:      time.Now,
	}
}

// Create starts a session owned by owner and returns its id.
func (r *Registry) Create(owner string) (string, *Controller) {
	id := uuid.NewString()
	ctrl := r.factory()

	r.mu.Lock()
	r.sessions[id] = &session{ctrl: ctrl, owner: owner, lastSeen: r.now()}
	r.mu.Unlock()
	return id, ctrl
}

// Get returns the session's controller if owner may use it.
func (r *Registry) Get(id, owner string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.owner != owner {
		return nil, ErrSessionForbidden
	}
	s.lastSeen = r.now()
	return s.ctrl, nil
}

// Remove closes and forgets a session.
func (r *Registry) Remove(id, owner string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.owner != owner {
		r.mu.Unlock()
		return ErrSessionForbidden
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	s.ctrl.Close()
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than maxIdle and returns how many
// were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var stale []*session
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.ctrl.Close()
	}
	return len(stale)
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	for _, s := range all {
		s.ctrl.Close()
	}
}
