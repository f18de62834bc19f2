package handler

import (
	"errors"
	"net/http"

	"github.com/securemedai/portal/application/port/inbound"
	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
	domainerr "github.com/securemedai/portal/domain/error"
	"github.com/securemedai/portal/infrastructure/http/response"
	"github.com/securemedai/portal/infrastructure/http/validator"
	"github.com/securemedai/portal/infrastructure/service/logger"
)

const (
	StateCookieName    = "portal_oidc_state"
	VerifierCookieName = "portal_oidc_verifier"

	federatedCookiePath   = "/auth/federated"
	federatedCookieMaxAge = 600
)

// SessionRotator rebinds the browser to a new session id after sign-in.
type SessionRotator interface {
	Rotate(w http.ResponseWriter, sessionID string) error
}

type AuthHandler struct {
	authUseCase   inbound.AuthUseCase
	sessions      SessionRotator
	secureCookies bool
	logger        logger.Logger
}

func NewAuthHandler(authUseCase inbound.AuthUseCase, sessions SessionRotator, secureCookies bool, logger logger.Logger) *AuthHandler {
	return &AuthHandler{
		authUseCase:   authUseCase,
		sessions:      sessions,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

type idTokenRequest struct {
	IDToken string `json:"id_token"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req inbound.LoginRequest
	if err := validator.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	res, err := h.authUseCase.Login(r.Context(), sessionID(r), req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	if !h.rotate(w, r, res) {
		return
	}
	response.Redirect(w, http.StatusOK, "Login successful!", res.Redirect, res)
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req inbound.RegisterRequest
	if err := validator.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	res, err := h.authUseCase.Register(r.Context(), req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Redirect(w, http.StatusCreated, res.Message, entity.LoginPath, res.Data)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	res, err := h.authUseCase.Logout(r.Context(), sessionID(r))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Redirect(w, http.StatusOK, "Logged out successfully", res.Redirect, nil)
}

// FederatedLogin sends the browser to the identity provider. State and the
// PKCE verifier live in short-lived cookies scoped to the callback.
func (h *AuthHandler) FederatedLogin(w http.ResponseWriter, r *http.Request) {
	start, err := h.authUseCase.BeginFederated(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	http.SetCookie(w, h.federatedCookie(StateCookieName, start.State, federatedCookieMaxAge))
	http.SetCookie(w, h.federatedCookie(VerifierCookieName, start.CodeVerifier, federatedCookieMaxAge))
	http.Redirect(w, r, start.AuthURL, http.StatusFound)
}

func (h *AuthHandler) FederatedCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	issuedState := cookieValue(r, StateCookieName)
	verifier := cookieValue(r, VerifierCookieName)
	http.SetCookie(w, h.federatedCookie(StateCookieName, "", -1))
	http.SetCookie(w, h.federatedCookie(VerifierCookieName, "", -1))

	if providerErr := q.Get("error"); providerErr != "" {
		h.logger.Warn(ctx, "Identity provider returned an error", map[string]interface{}{
			"error":       providerErr,
			"description": q.Get("error_description"),
		})
		http.Redirect(w, r, entity.LoginPath, http.StatusSeeOther)
		return
	}
	if !validator.ValidateState(issuedState, q.Get("state")) {
		outbound.LogSecurityEvent(ctx, h.logger, "federated_state_mismatch", "MEDIUM", map[string]interface{}{
			"ip": inbound.ClientIPFromContext(ctx),
		})
		http.Redirect(w, r, entity.LoginPath, http.StatusSeeOther)
		return
	}

	res, err := h.authUseCase.CompleteFederated(ctx, sessionID(r), inbound.FederatedCallback{
		Code:         q.Get("code"),
		CodeVerifier: verifier,
	})
	if err != nil {
		if errors.Is(err, domainerr.ErrFederatedDisabled) {
			response.FromError(w, err)
			return
		}
		http.Redirect(w, r, entity.LoginPath, http.StatusSeeOther)
		return
	}
	if !h.rotate(w, r, res) {
		return
	}
	http.Redirect(w, r, res.Redirect, http.StatusSeeOther)
}

// FederatedToken signs in with an ID token obtained by a client-side
// provider SDK.
func (h *AuthHandler) FederatedToken(w http.ResponseWriter, r *http.Request) {
	var req idTokenRequest
	if err := validator.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	res, err := h.authUseCase.SignInWithIDToken(r.Context(), sessionID(r), req.IDToken)
	if err != nil {
		response.FromError(w, err)
		return
	}
	if !h.rotate(w, r, res) {
		return
	}
	response.Redirect(w, http.StatusOK, "Login successful!", res.Redirect, res)
}

// rotate moves the browser onto the session the sign-in committed to.
func (h *AuthHandler) rotate(w http.ResponseWriter, r *http.Request, res *inbound.LoginResponse) bool {
	if res.SessionID == "" {
		return true
	}
	if err := h.sessions.Rotate(w, res.SessionID); err != nil {
		h.logger.Error(r.Context(), "Failed to issue rotated session cookie", err, nil)
		response.InternalServerError(w, "Internal server error")
		return false
	}
	return true
}

func (h *AuthHandler) federatedCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     federatedCookiePath,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func sessionID(r *http.Request) string {
	id, _ := outbound.SessionIDFromContext(r.Context())
	return id
}
