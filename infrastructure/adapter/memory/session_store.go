// Package memory holds process-local adapters used by single-instance
// deployments and by tests.
package memory

import (
	"context"
	"sync"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
)

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]entity.Session
}

var _ outbound.SessionStore = (*SessionStore)(nil)

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]entity.Session)}
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (entity.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.sessions[sessionID]), nil
}

func (s *SessionStore) Set(_ context.Context, sessionID string, update entity.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.sessions[sessionID].Apply(update)
	if err != nil {
		return err
	}
	if next.IsEmpty() {
		delete(s.sessions, sessionID)
		return nil
	}
	s.sessions[sessionID] = copySession(next)
	return nil
}

func (s *SessionStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

func copySession(in entity.Session) entity.Session {
	if in.UserDetails == nil {
		return in
	}
	details := make(map[string]interface{}, len(in.UserDetails))
	for k, v := range in.UserDetails {
		details[k] = v
	}
	in.UserDetails = details
	return in
}
