package memory

import (
	"context"
	"sync"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
)

const watchBuffer = 8

type watcher struct {
	ch chan entity.FederatedEvent
}

// FederatedStore keeps federated credentials in memory and fans out
// sign-in and sign-out events to watchers of the same browser session.
type FederatedStore struct {
	mu       sync.Mutex
	creds    map[string]entity.FederatedCredential
	watchers map[string]map[*watcher]struct{}
}

var _ outbound.FederatedSessionStore = (*FederatedStore)(nil)

func NewFederatedStore() *FederatedStore {
	return &FederatedStore{
		creds:    make(map[string]entity.FederatedCredential),
		watchers: make(map[string]map[*watcher]struct{}),
	}
}

func (s *FederatedStore) Save(_ context.Context, sessionID string, cred entity.FederatedCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[sessionID] = cred
	s.broadcast(entity.FederatedEvent{SessionID: sessionID, Active: true, Subject: cred.Subject})
	return nil
}

func (s *FederatedStore) Load(_ context.Context, sessionID string) (*entity.FederatedCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[sessionID]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (s *FederatedStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred := s.creds[sessionID]
	delete(s.creds, sessionID)
	s.broadcast(entity.FederatedEvent{SessionID: sessionID, Active: false, Subject: cred.Subject})
	return nil
}

func (s *FederatedStore) Watch(ctx context.Context, sessionID string) (<-chan entity.FederatedEvent, error) {
	w := &watcher{ch: make(chan entity.FederatedEvent, watchBuffer)}

	s.mu.Lock()
	current := entity.FederatedEvent{SessionID: sessionID}
	if cred, ok := s.creds[sessionID]; ok {
		current.Active = true
		current.Subject = cred.Subject
	}
	w.ch <- current
	if s.watchers[sessionID] == nil {
		s.watchers[sessionID] = make(map[*watcher]struct{})
	}
	s.watchers[sessionID][w] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers[sessionID], w)
		if len(s.watchers[sessionID]) == 0 {
			delete(s.watchers, sessionID)
		}
		close(w.ch)
		s.mu.Unlock()
	}()

	return w.ch, nil
}

// broadcast must be called with s.mu held. A slow watcher loses its oldest
// pending event, never the newest one.
func (s *FederatedStore) broadcast(ev entity.FederatedEvent) {
	for w := range s.watchers[ev.SessionID] {
		select {
		case w.ch <- ev:
		default:
			select {
			case <-w.ch:
			default:
			}
			w.ch <- ev
		}
	}
}
