package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
)

const maxTxRetries = 5

var ErrConcurrentUpdate = errors.New("session changed concurrently, retries exhausted")

type SessionStore struct {
	client *goredis.Client
	sealer Sealer
	ttl    time.Duration
}

var _ outbound.SessionStore = (*SessionStore)(nil)

func NewSessionStore(client *goredis.Client, sealer Sealer, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, sealer: sealer, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return keyPrefix + "session:" + sessionID
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (entity.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return entity.Session{}, nil
		}
		return entity.Session{}, fmt.Errorf("failed to read session: %w", err)
	}
	return s.decode(raw)
}

// Set merges update into the stored session inside a WATCH transaction so
// concurrent partial writes from the same browser do not clobber each other.
func (s *SessionStore) Set(ctx context.Context, sessionID string, update entity.SessionUpdate) error {
	key := sessionKey(sessionID)

	txf := func(tx *goredis.Tx) error {
		current := entity.Session{}
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case err == goredis.Nil:
		case err != nil:
			return fmt.Errorf("failed to read session: %w", err)
		default:
			if current, err = s.decode(raw); err != nil {
				return err
			}
		}

		next, err := current.Apply(update)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if next.IsEmpty() {
				pipe.Del(ctx, key)
				return nil
			}
			sealed, err := s.encode(next)
			if err != nil {
				return err
			}
			pipe.Set(ctx, key, sealed, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if err == goredis.TxFailedErr {
			continue
		}
		return err
	}
	return ErrConcurrentUpdate
}

func (s *SessionStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *SessionStore) encode(sess entity.Session) (string, error) {
	payload, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.sealer.Seal(payload)
}

func (s *SessionStore) decode(raw string) (entity.Session, error) {
	payload, err := s.sealer.Open(raw)
	if err != nil {
		return entity.Session{}, fmt.Errorf("failed to open session: %w", err)
	}
	var sess entity.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return entity.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return sess, nil
}
