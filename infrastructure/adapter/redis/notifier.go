package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/securemedai/portal/application/port/outbound"
)

const (
	maxPendingNotifications = 20
	notificationTTL         = time.Hour
)

type Notifier struct {
	client *goredis.Client
}

var _ outbound.Notifier = (*Notifier)(nil)

func NewNotifier(client *goredis.Client) *Notifier {
	return &Notifier{client: client}
}

func notificationKey(sessionID string) string {
	return keyPrefix + "notifications:" + sessionID
}

func (n *Notifier) Push(ctx context.Context, sessionID string, note outbound.Notification) error {
	if sessionID == "" {
		return nil
	}
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	key := notificationKey(sessionID)
	pipe := n.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, -maxPendingNotifications, -1)
	pipe.Expire(ctx, key, notificationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	return nil
}

func (n *Notifier) Drain(ctx context.Context, sessionID string) ([]outbound.Notification, error) {
	key := notificationKey(sessionID)
	var rangeCmd *goredis.StringSliceCmd
	_, err := n.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		rangeCmd = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain notifications: %w", err)
	}

	items := rangeCmd.Val()
	notes := make([]outbound.Notification, 0, len(items))
	for _, item := range items {
		var note outbound.Notification
		if err := json.Unmarshal([]byte(item), &note); err != nil {
			continue
		}
		notes = append(notes, note)
	}
	return notes, nil
}
