package outbound

import (
	"context"
	"errors"

	"github.com/securemedai/portal/domain/entity"
)

var ErrFederatedTokenUnavailable = errors.New("federated token unavailable")

// AuthRequest is a provider redirect plus the values its callback must echo
// back: the state nonce and the PKCE code verifier.
type AuthRequest struct {
	URL          string
	State        string
	CodeVerifier string
}

// FederatedProvider is the third-party identity provider. It proves who the
// user is; it never decides the role.
type FederatedProvider interface {
	Name() string
	// BeginAuth starts an authorization code flow with a fresh state and
	// PKCE verifier.
	BeginAuth() (*AuthRequest, error)
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*entity.FederatedCredential, error)
	VerifyIDToken(ctx context.Context, rawIDToken string) (*entity.FederatedCredential, error)
	// Refresh mints a fresh ID token from the credential's refresh token.
	Refresh(ctx context.Context, cred entity.FederatedCredential) (*entity.FederatedCredential, error)
}

// FederatedSessionStore tracks which browser sessions are signed in at the
// provider and broadcasts changes to listeners.
type FederatedSessionStore interface {
	Save(ctx context.Context, sessionID string, cred entity.FederatedCredential) error
	// Load returns nil without error when no federated session exists.
	Load(ctx context.Context, sessionID string) (*entity.FederatedCredential, error)
	Delete(ctx context.Context, sessionID string) error
	// Watch emits the current state first, then every later change, until
	// ctx is done. The channel is closed on teardown.
	Watch(ctx context.Context, sessionID string) (<-chan entity.FederatedEvent, error)
}
