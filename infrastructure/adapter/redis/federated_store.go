package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
)

// FederatedStore persists federated credentials and publishes sign-in
// state changes on a per-session channel so every portal instance sees them.
type FederatedStore struct {
	client *goredis.Client
	sealer Sealer
	ttl    time.Duration
}

var _ outbound.FederatedSessionStore = (*FederatedStore)(nil)

func NewFederatedStore(client *goredis.Client, sealer Sealer, ttl time.Duration) *FederatedStore {
	return &FederatedStore{client: client, sealer: sealer, ttl: ttl}
}

func federatedKey(sessionID string) string {
	return keyPrefix + "federated:" + sessionID
}

func federatedChannel(sessionID string) string {
	return keyPrefix + "federated-events:" + sessionID
}

func (s *FederatedStore) Save(ctx context.Context, sessionID string, cred entity.FederatedCredential) error {
	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal federated credential: %w", err)
	}
	sealed, err := s.sealer.Seal(payload)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, federatedKey(sessionID), sealed, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save federated credential: %w", err)
	}
	return s.publish(ctx, entity.FederatedEvent{SessionID: sessionID, Active: true, Subject: cred.Subject})
}

func (s *FederatedStore) Load(ctx context.Context, sessionID string) (*entity.FederatedCredential, error) {
	raw, err := s.client.Get(ctx, federatedKey(sessionID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load federated credential: %w", err)
	}
	payload, err := s.sealer.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to open federated credential: %w", err)
	}
	var cred entity.FederatedCredential
	if err := json.Unmarshal(payload, &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal federated credential: %w", err)
	}
	return &cred, nil
}

func (s *FederatedStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, federatedKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete federated credential: %w", err)
	}
	return s.publish(ctx, entity.FederatedEvent{SessionID: sessionID, Active: false})
}

// Watch subscribes before reading the current state, so a change that lands
// between the two is still delivered.
func (s *FederatedStore) Watch(ctx context.Context, sessionID string) (<-chan entity.FederatedEvent, error) {
	pubsub := s.client.Subscribe(ctx, federatedChannel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to federated events: %w", err)
	}

	current := entity.FederatedEvent{SessionID: sessionID}
	cred, err := s.Load(ctx, sessionID)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	if cred != nil {
		current.Active = true
		current.Subject = cred.Subject
	}

	out := make(chan entity.FederatedEvent, 1)
	out <- current

	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev entity.FederatedEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *FederatedStore) publish(ctx context.Context, ev entity.FederatedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal federated event: %w", err)
	}
	if err := s.client.Publish(ctx, federatedChannel(ev.SessionID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish federated event: %w", err)
	}
	return nil
}
