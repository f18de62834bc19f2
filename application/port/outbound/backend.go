package outbound

import (
	"context"

	"github.com/securemedai/portal/domain/entity"
	"github.com/securemedai/portal/domain/valueobject"
)

type BackendLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// BackendAuthResult is the success shape shared by the login and the
// federated-token exchange endpoints.
type BackendAuthResult struct {
	Token       valueobject.TokenPair  `json:"token"`
	Name        string                 `json:"name"`
	Role        string                 `json:"role"`
	Email       string                 `json:"email,omitempty"`
	UserDetails map[string]interface{} `json:"user_details,omitempty"`
}

type BackendRegistration struct {
	UserData    map[string]interface{} `json:"user_data"`
	ProfileData map[string]interface{} `json:"profile_data"`
}

// BackendClient is the hospital REST API as used by the auth flows. These
// calls are unauthenticated and never tear down the session.
type BackendClient interface {
	Login(ctx context.Context, req BackendLoginRequest) (*BackendAuthResult, error)
	ExchangeIDToken(ctx context.Context, idToken string) (*BackendAuthResult, error)
	Register(ctx context.Context, role entity.Role, req BackendRegistration) (map[string]interface{}, error)
}
