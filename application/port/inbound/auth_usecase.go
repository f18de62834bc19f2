package inbound

import (
	"context"

	"github.com/securemedai/portal/domain/entity"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// LoginResponse tells the caller where to navigate after a committed sign-in.
// SessionID is the fresh browser session the credentials were committed to;
// the caller must rebind the browser to it.
type LoginResponse struct {
	Redirect    string      `json:"redirect"`
	DisplayName string      `json:"display_name"`
	Role        entity.Role `json:"role"`
	SessionID   string      `json:"-"`
}

// FederatedStart carries the provider redirect plus the values the caller
// must keep until the callback arrives.
type FederatedStart struct {
	AuthURL      string
	State        string
	CodeVerifier string
}

type FederatedCallback struct {
	Code         string
	CodeVerifier string
}

type RegisterRequest struct {
	Role        string                 `json:"role"`
	UserData    map[string]interface{} `json:"user_data"`
	ProfileData map[string]interface{} `json:"profile_data"`
}

type RegisterResponse struct {
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

type LogoutResponse struct {
	Redirect string `json:"redirect"`
}

type AuthUseCase interface {
	Login(ctx context.Context, sessionID string, req LoginRequest) (*LoginResponse, error)
	FederatedEnabled() bool
	BeginFederated(ctx context.Context) (*FederatedStart, error)
	CompleteFederated(ctx context.Context, sessionID string, cb FederatedCallback) (*LoginResponse, error)
	SignInWithIDToken(ctx context.Context, sessionID, rawIDToken string) (*LoginResponse, error)
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	Logout(ctx context.Context, sessionID string) (*LogoutResponse, error)
}

// IdentityResolver hands out the resolved identity of a browser session.
type IdentityResolver interface {
	Acquire(ctx context.Context, sessionID string) entity.IdentityState
	Invalidate(ctx context.Context, sessionID string)
	Discard(sessionID string)
}
