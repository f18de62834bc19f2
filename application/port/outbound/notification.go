package outbound

import (
	"context"
	"time"
)

type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationError   NotificationLevel = "error"
)

// Notification is a transient, user-visible message (a toast).
type Notification struct {
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
}

// Notifier queues notifications per browser session until they are drained.
type Notifier interface {
	Push(ctx context.Context, sessionID string, n Notification) error
	Drain(ctx context.Context, sessionID string) ([]Notification, error)
}
