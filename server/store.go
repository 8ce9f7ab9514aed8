package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// SessionStore persists browser sessions keyed by opaque session id.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, bool, error)
	Save(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, id string) error
}

// InMemorySessionStore keeps sessions in a mutex-guarded map.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewInMemorySessionStore constructs the store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]Session)}
}

// Get retrieves a session by id, dropping it if expired. The returned
// session is a deep copy owned by the caller; concurrent callers never
// share interaction state through the store.
func (s *InMemorySessionStore) Get(_ context.Context, id string) (*Session, bool, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(sess.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return nil, false, nil
	}
	return sess.clone(), true, nil
}

// Save stores or replaces a session. The stored copy is detached from
// the caller's, so later mutations by the caller do not leak in.
func (s *InMemorySessionStore) Save(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess.clone()
	return nil
}

// Delete removes a session.
func (s *InMemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// NewID generates a random opaque identifier. Used for session ids and
// authorization codes; 128 bits of entropy makes them unguessable.
func NewID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the process cannot mint secrets.
		panic("server: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
