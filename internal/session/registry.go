package session

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrDuplicateStream = errors.New("stream already has a registered session")
	ErrRegistryClosed  = errors.New("registry is closed")
)

// Registry is the table of live calls keyed by stream id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
	onChange func(active int)
	closed   bool
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*CallSession)}
}

// SetChangeHook registers a callback invoked with the new size after every
// insert or removal. It runs outside the lock.
func (r *Registry) SetChangeHook(hook func(active int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = hook
}

func (r *Registry) Register(s *CallSession) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}
	if _, exists := r.sessions[s.StreamID]; exists {
		r.mu.Unlock()
		return ErrDuplicateStream
	}
	r.sessions[s.StreamID] = s
	n, hook := len(r.sessions), r.onChange
	r.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

func (r *Registry) Get(streamID string) (*CallSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[streamID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove deletes the entry and returns it. Only one caller observes ok=true
// for a given registration.
func (r *Registry) Remove(streamID string) (*CallSession, bool) {
	r.mu.Lock()
	s, ok := r.sessions[streamID]
	if ok {
		delete(r.sessions, streamID)
	}
	n, hook := len(r.sessions), r.onChange
	r.mu.Unlock()

	if ok && hook != nil {
		hook(n)
	}
	return s, ok
}

// RemoveIf deletes the entry only if it is still s.
func (r *Registry) RemoveIf(s *CallSession) bool {
	r.mu.Lock()
	cur, ok := r.sessions[s.StreamID]
	ok = ok && cur == s
	if ok {
		delete(r.sessions, s.StreamID)
	}
	n, hook := len(r.sessions), r.onChange
	r.mu.Unlock()

	if ok && hook != nil {
		hook(n)
	}
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Active lists live calls, oldest first.
func (r *Registry) Active() []Info {
	r.mu.RLock()
	sessions := make([]*CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StreamID < out[j].StreamID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Drain empties the registry, refuses later registrations and returns what
// it held.
func (r *Registry) Drain() []*CallSession {
	r.mu.Lock()
	r.closed = true
	out := make([]*CallSession, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, s)
		delete(r.sessions, id)
	}
	hook := r.onChange
	r.mu.Unlock()

	if len(out) > 0 && hook != nil {
		hook(0)
	}
	return out
}
