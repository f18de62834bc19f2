package outbound

import (
	"context"

	"github.com/securemedai/portal/domain/entity"
)

// SessionStore is the durable per-browser key-value record of credentials.
// Reads of a missing session return the zero Session. Stored values are not
// validated against the backend; callers learn about stale tokens through
// request failures.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (entity.Session, error)
	Set(ctx context.Context, sessionID string, update entity.SessionUpdate) error
	Clear(ctx context.Context, sessionID string) error
}

type sessionIDKey struct{}

// ContextWithSessionID binds the browser session to a request context.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionIDFromContext returns the browser session bound to ctx, if any.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey{}).(string)
	return id, ok && id != ""
}
