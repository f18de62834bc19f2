package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/securemedai/portal/application/port/inbound"
	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
	domainerr "github.com/securemedai/portal/domain/error"
	"github.com/securemedai/portal/infrastructure/adapter/memory"
	"github.com/securemedai/portal/infrastructure/service/logger"
)

type MockAuthUseCase struct {
	mock.Mock
}

func (m *MockAuthUseCase) Login(ctx context.Context, sessionID string, req inbound.LoginRequest) (*inbound.LoginResponse, error) {
	args := m.Called(ctx, sessionID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inbound.LoginResponse), args.Error(1)
}

func (m *MockAuthUseCase) FederatedEnabled() bool {
	return m.Called().Bool(0)
}

func (m *MockAuthUseCase) BeginFederated(ctx context.Context) (*inbound.FederatedStart, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inbound.FederatedStart), args.Error(1)
}

func (m *MockAuthUseCase) CompleteFederated(ctx context.Context, sessionID string, cb inbound.FederatedCallback) (*inbound.LoginResponse, error) {
	args := m.Called(ctx, sessionID, cb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inbound.LoginResponse), args.Error(1)
}

func (m *MockAuthUseCase) SignInWithIDToken(ctx context.Context, sessionID, rawIDToken string) (*inbound.LoginResponse, error) {
	args := m.Called(ctx, sessionID, rawIDToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inbound.LoginResponse), args.Error(1)
}

func (m *MockAuthUseCase) Register(ctx context.Context, req inbound.RegisterRequest) (*inbound.RegisterResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inbound.RegisterResponse), args.Error(1)
}

func (m *MockAuthUseCase) Logout(ctx context.Context, sessionID string) (*inbound.LogoutResponse, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inbound.LogoutResponse), args.Error(1)
}

func withSession(r *http.Request, sid string) *http.Request {
	return r.WithContext(outbound.ContextWithSessionID(r.Context(), sid))
}

type recordingRotator struct {
	rotated []string
	err     error
}

func (r *recordingRotator) Rotate(_ http.ResponseWriter, sessionID string) error {
	if r.err != nil {
		return r.err
	}
	r.rotated = append(r.rotated, sessionID)
	return nil
}

func callbackRequest(query string, cookies map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/auth/federated/callback?"+query, nil)
	for name, value := range cookies {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return withSession(r, "s1")
}

func TestAuthHandler_FederatedLogin(t *testing.T) {
	uc := new(MockAuthUseCase)
	uc.On("BeginFederated", mock.Anything).Return(&inbound.FederatedStart{
		AuthURL:      "https://idp.test/authorize?state=st",
		State:        "st",
		CodeVerifier: "ver",
	}, nil)
	h := NewAuthHandler(uc, &recordingRotator{}, true, logger.NewNopLogger())

	rec := httptest.NewRecorder()
	h.FederatedLogin(rec, withSession(httptest.NewRequest(http.MethodGet, "/auth/federated/login", nil), "s1"))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://idp.test/authorize?state=st", rec.Header().Get("Location"))
	cookies := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c
	}
	require.Contains(t, cookies, StateCookieName)
	require.Contains(t, cookies, VerifierCookieName)
	assert.Equal(t, "st", cookies[StateCookieName].Value)
	assert.Equal(t, "ver", cookies[VerifierCookieName].Value)
	assert.Equal(t, "/auth/federated", cookies[StateCookieName].Path)
	assert.True(t, cookies[VerifierCookieName].HttpOnly)
	assert.True(t, cookies[VerifierCookieName].Secure)
}

func TestAuthHandler_FederatedCallback(t *testing.T) {
	valid := map[string]string{StateCookieName: "st", VerifierCookieName: "ver"}

	tests := []struct {
		name         string
		query        string
		cookies      map[string]string
		setup        func(uc *MockAuthUseCase)
		wantStatus   int
		wantLocation string
	}{
		{
			name:    "success",
			query:   "code=c1&state=st",
			cookies: valid,
			setup: func(uc *MockAuthUseCase) {
				uc.On("CompleteFederated", mock.Anything, "s1", inbound.FederatedCallback{Code: "c1", CodeVerifier: "ver"}).
					Return(&inbound.LoginResponse{Redirect: "/patient-dashboard"}, nil)
			},
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/patient-dashboard",
		},
		{
			name:         "state mismatch",
			query:        "code=c1&state=other",
			cookies:      valid,
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/login",
		},
		{
			name:         "missing state cookie",
			query:        "code=c1&state=st",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/login",
		},
		{
			name:         "provider error",
			query:        "error=access_denied&state=st",
			cookies:      valid,
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/login",
		},
		{
			name:    "exchange failure",
			query:   "code=c1&state=st",
			cookies: valid,
			setup: func(uc *MockAuthUseCase) {
				uc.On("CompleteFederated", mock.Anything, "s1", mock.Anything).
					Return(nil, domainerr.ErrTokenExchangeFailed("", errors.New("rejected")))
			},
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/login",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := new(MockAuthUseCase)
			if tt.setup != nil {
				tt.setup(uc)
			}
			h := NewAuthHandler(uc, &recordingRotator{}, false, logger.NewNopLogger())

			rec := httptest.NewRecorder()
			h.FederatedCallback(rec, callbackRequest(tt.query, tt.cookies))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			for _, c := range rec.Result().Cookies() {
				assert.Equal(t, -1, c.MaxAge, c.Name)
			}
			if tt.setup == nil {
				uc.AssertNotCalled(t, "CompleteFederated", mock.Anything, mock.Anything, mock.Anything)
			}
			uc.AssertExpectations(t)
		})
	}
}

func TestAuthHandler_FederatedToken(t *testing.T) {
	uc := new(MockAuthUseCase)
	uc.On("SignInWithIDToken", mock.Anything, "s1", "raw").
		Return(&inbound.LoginResponse{Redirect: "/doctor-dashboard", DisplayName: "Sam", Role: entity.RoleDoctor}, nil)
	h := NewAuthHandler(uc, &recordingRotator{}, false, logger.NewNopLogger())

	rec := httptest.NewRecorder()
	req := withSession(httptest.NewRequest(http.MethodPost, "/auth/federated/token", strings.NewReader(`{"id_token":"raw"}`)), "s1")
	h.FederatedToken(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redirect":"/doctor-dashboard"`)
}

func TestAuthHandler_SignInRotatesSession(t *testing.T) {
	success := &inbound.LoginResponse{Redirect: "/doctor-dashboard", Role: entity.RoleDoctor, SessionID: "fresh"}

	tests := []struct {
		name       string
		rotateErr  error
		wantStatus int
	}{
		{"rotated", nil, http.StatusOK},
		{"cookie cannot be issued", errors.New("signing failed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := new(MockAuthUseCase)
			uc.On("Login", mock.Anything, "s1", mock.Anything).Return(success, nil)
			rotator := &recordingRotator{err: tt.rotateErr}
			h := NewAuthHandler(uc, rotator, false, logger.NewNopLogger())

			rec := httptest.NewRecorder()
			req := withSession(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"a@b.co","password":"p","role":"DOCTOR"}`)), "s1")
			h.Login(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.rotateErr == nil {
				assert.Equal(t, []string{"fresh"}, rotator.rotated)
				assert.NotContains(t, rec.Body.String(), "fresh")
			}
		})
	}

	t.Run("federated callback", func(t *testing.T) {
		uc := new(MockAuthUseCase)
		uc.On("CompleteFederated", mock.Anything, "s1", mock.Anything).Return(success, nil)
		rotator := &recordingRotator{}
		h := NewAuthHandler(uc, rotator, false, logger.NewNopLogger())

		rec := httptest.NewRecorder()
		h.FederatedCallback(rec, callbackRequest("code=c1&state=st", map[string]string{StateCookieName: "st", VerifierCookieName: "ver"}))

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, []string{"fresh"}, rotator.rotated)
	})
}

func TestAuthHandler_LoginRateLimited(t *testing.T) {
	uc := new(MockAuthUseCase)
	uc.On("Login", mock.Anything, "s1", mock.Anything).Return(nil, domainerr.ErrIPBlocked("10.0.0.1"))
	h := NewAuthHandler(uc, &recordingRotator{}, false, logger.NewNopLogger())

	rec := httptest.NewRecorder()
	req := withSession(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"a@b.co","password":"p","role":"DOCTOR"}`)), "s1")
	h.Login(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_3002")
}

type stubForwarder struct {
	err error
}

func (s stubForwarder) Forward(w http.ResponseWriter, _ *http.Request, _ string) error {
	if s.err == nil {
		w.WriteHeader(http.StatusNoContent)
	}
	return s.err
}

func TestAPIHandler_Proxy(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		accept       string
		wantStatus   int
		wantLocation string
	}{
		{"forwarded", nil, "", http.StatusNoContent, ""},
		{"session ended api", domainerr.ErrSessionInvalid, "application/json", http.StatusUnauthorized, ""},
		{"session ended navigation", domainerr.ErrSessionInvalid, "text/html,application/xhtml+xml", http.StatusSeeOther, "/login"},
		{"network failure", domainerr.ErrExternalService("An error occurred", errors.New("dial")), "", http.StatusBadGateway, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAPIHandler(stubForwarder{err: tt.err}, nil, memory.NewNotifier(), logger.NewNopLogger())
			req := httptest.NewRequest(http.MethodGet, "/api/appointments/", nil)
			req.Header.Set("Accept", tt.accept)

			rec := httptest.NewRecorder()
			h.Proxy(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
		})
	}
}

func TestAPIHandler_NotificationsEmpty(t *testing.T) {
	h := NewAPIHandler(stubForwarder{}, nil, memory.NewNotifier(), logger.NewNopLogger())
	rec := httptest.NewRecorder()
	h.Notifications(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/notifications", nil), "s1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}
