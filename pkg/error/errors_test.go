package error

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	domainerr "github.com/securemedai/portal/domain/error"
)

type fakeUpstream struct {
	status  int
	message string
}

func (f *fakeUpstream) Error() string       { return "upstream" }
func (f *fakeUpstream) HTTPStatus() int     { return f.status }
func (f *fakeUpstream) UserMessage() string { return f.message }

func TestMapError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"validation", domainerr.ErrValidation(domainerr.ErrCodeInvalidEmail, "email", "Invalid email address"), http.StatusUnprocessableEntity, "VALID_2001", "Invalid email address"},
		{"bad credentials", domainerr.ErrInvalidCredentials(""), http.StatusUnauthorized, "AUTH_1001", "Login failed"},
		{"session invalid wrapped", fmt.Errorf("call: %w", domainerr.ErrSessionInvalid), http.StatusUnauthorized, "AUTHZ_8001", "Session is no longer valid"},
		{"rate limited", domainerr.ErrIPBlocked("1.2.3.4"), http.StatusTooManyRequests, "RATE_3002", "Too many login attempts. Please try again later."},
		{"internal hides cause", domainerr.ErrInternal(errors.New("db password leaked")), http.StatusInternalServerError, "SERVER_6001", "Internal server error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "SERVER_6001", "Internal server error"},
		{"upstream", &fakeUpstream{status: http.StatusConflict, message: "Already booked"}, http.StatusConflict, "SERVER_6004", "Already booked"},
		{"upstream without message", &fakeUpstream{status: http.StatusBadGateway}, http.StatusBadGateway, "SERVER_6004", "An error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.message, got.Message)
		})
	}
}

func TestCategory(t *testing.T) {
	assert.Equal(t, "validation", domainerr.Category(domainerr.ErrInvalidRequest("x")))
	assert.Equal(t, "authentication", domainerr.Category(domainerr.ErrProviderFailed(nil)))
	assert.Equal(t, "authorization", domainerr.Category(domainerr.ErrSessionInvalid))
	assert.Equal(t, "rate_limit", domainerr.Category(domainerr.ErrRateLimitExceeded(5, "15m")))
	assert.Equal(t, "server", domainerr.Category(errors.New("x")))
}

func TestMapError_AppErrorWinsOverUpstreamCause(t *testing.T) {
	err := domainerr.ErrTokenExchangeFailed("Account not approved", &fakeUpstream{status: http.StatusForbidden, message: "Account not approved"})
	got := MapError(err)
	assert.Equal(t, http.StatusUnauthorized, got.Status)
	assert.Equal(t, "AUTH_1003", got.Code)
	assert.Equal(t, "Account not approved", got.Message)
}
