package memory

import (
	"context"
	"sync"
	"time"

	"github.com/securemedai/portal/application/port/outbound"
)

const (
	// MaxPendingNotifications bounds each session's queue; older entries are
	// dropped first.
	MaxPendingNotifications = 20
	// NotificationTTL is how long an undrained queue is kept after its last push.
	NotificationTTL = time.Hour

	sweepInterval = time.Minute
)

type queue struct {
	notes   []outbound.Notification
	expires time.Time
}

type Notifier struct {
	now func() time.Time

	mu        sync.Mutex
	pending   map[string]queue
	nextSweep time.Time
}

var _ outbound.Notifier = (*Notifier)(nil)

func NewNotifier() *Notifier {
	return &Notifier{now: time.Now, pending: make(map[string]queue)}
}

func (n *Notifier) Push(_ context.Context, sessionID string, note outbound.Notification) error {
	if sessionID == "" {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	n.sweepLocked(now)

	q := n.pending[sessionID]
	if !now.Before(q.expires) {
		q.notes = nil
	}
	q.notes = append(q.notes, note)
	if len(q.notes) > MaxPendingNotifications {
		q.notes = q.notes[len(q.notes)-MaxPendingNotifications:]
	}
	q.expires = now.Add(NotificationTTL)
	n.pending[sessionID] = q
	return nil
}

func (n *Notifier) Drain(_ context.Context, sessionID string) ([]outbound.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	q, ok := n.pending[sessionID]
	delete(n.pending, sessionID)
	if !ok || !n.now().Before(q.expires) {
		return nil, nil
	}
	return q.notes, nil
}

// Len reports how many sessions hold a queue.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// sweepLocked drops expired queues at most once per sweepInterval.
func (n *Notifier) sweepLocked(now time.Time) {
	if now.Before(n.nextSweep) {
		return
	}
	n.nextSweep = now.Add(sweepInterval)
	for id, q := range n.pending {
		if !now.Before(q.expires) {
			delete(n.pending, id)
		}
	}
}
