// Package memory provides an in-process history store.
package memory

import (
	"context"
	"sync"

	"github.com/smallnest/atlaschat/internal/history"
)

// Store implements history.Store with a mutex-guarded map. Suitable for
// single-process deployments and tests.
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]history.Message
}

var _ history.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string][]history.Message),
	}
}

// Append adds messages to a session.
func (s *Store) Append(_ context.Context, sessionID string, msgs ...history.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msgs...)
	return nil
}

// Get returns a copy of a session's messages.
func (s *Store) Get(_ context.Context, sessionID string) ([]history.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, ok := s.sessions[sessionID]
	if !ok {
		return nil, history.ErrSessionNotFound
	}

	out := make([]history.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Clear removes a session.
func (s *Store) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Sessions lists known session IDs.
func (s *Store) Sessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
