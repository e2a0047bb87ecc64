package session

import (
	"context"
	"errors"
	"sync"

	"github.com/jakesimonds/Creator/internal/logging"
)

// ErrSessionExists is returned by Open for an ID that is already running.
var ErrSessionExists = errors.New("session already open")

type entry struct {
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Registry tracks running sessions by ID.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	onExit   func(*Session)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithExitHook calls fn after a session's Run returns and it has left the
// registry.
func WithExitHook(fn func(*Session)) RegistryOption {
	return func(r *Registry) { r.onExit = fn }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{sessions: make(map[string]*entry)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Open starts s in its own goroutine. The session is removed from the
// registry when Run returns.
func (r *Registry) Open(ctx context.Context, s *Session) error {
	id := s.ID()
	r.mu.Lock()
	if _, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return ErrSessionExists
	}
	runCtx, cancel := context.WithCancel(ctx)
	e := &entry{session: s, cancel: cancel, done: make(chan struct{})}
	r.sessions[id] = e
	r.mu.Unlock()

	go func() {
		defer close(e.done)
		defer cancel()
		if err := s.Run(runCtx); err != nil {
			logging.Warnw("session: run failed", "session.id", id, "err", err)
		}
		r.mu.Lock()
		if r.sessions[id] == e {
			delete(r.sessions, id)
		}
		r.mu.Unlock()
		if r.onExit != nil {
			r.onExit(s)
		}
	}()
	return nil
}

// Get returns the running session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the session with id and waits for it to exit. It reports
// whether the session was running.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.cancel()
	<-e.done
	return true
}

// CloseAll stops every session and waits for them to exit.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.Unlock()
	for _, e := range entries {
		e.cancel()
	}
	for _, e := range entries {
		<-e.done
	}
}
