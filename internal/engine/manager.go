package engine

import (
	"context"
	"sync"
)

// entry pairs a session with a one-shot resolution. Concurrent Opens for
// the same token all wait on the first resolution instead of observing a
// session whose data has not arrived yet.
type entry struct {
	session *Session
	resolve sync.Once
	err     error
}

// Manager hosts one Session per token so the HTTP surface can serve many
// candidates concurrently.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	deps     Dependencies
}

func NewManager(deps Dependencies) *Manager {
	return &Manager{
		sessions: make(map[string]*entry),
		deps:     deps,
	}
}

// Open returns the session for the token, resolving it from the gateway on
// first access. Every caller blocks until that resolution has completed. A
// session that failed to resolve stays registered in its Error step so its
// state remains inspectable; the resolution error is returned alongside it.
func (m *Manager) Open(ctx context.Context, token string) (*Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[token]
	if !ok {
		e = &entry{session: NewSession(token, m.deps)}
		m.sessions[token] = e
	}
	m.mu.Unlock()

	e.resolve.Do(func() {
		e.err = e.session.Start(ctx)
	})
	return e.session, e.err
}

// Get returns an already-opened session.
func (m *Manager) Get(token string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.session, nil
}

// Discard drops a session and stops its tick sources. Progress is gone
// after this; persisted answer scopes survive for a later Open.
func (m *Manager) Discard(token string) {
	m.mu.Lock()
	e, ok := m.sessions[token]
	delete(m.sessions, token)
	m.mu.Unlock()
	if ok {
		e.session.Close()
	}
}
