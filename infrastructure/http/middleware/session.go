package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/infrastructure/http/response"
	"github.com/securemedai/portal/infrastructure/http/validator"
	"github.com/securemedai/portal/infrastructure/service/logger"
)

const SessionCookieName = "portal_session"

type SessionConfig struct {
	Tokens outbound.SessionTokenService
	TTL    time.Duration
	Secure bool
	Logger logger.Logger
}

// SessionMiddleware binds every request to a browser session. The cookie
// holds only a signed session id; a missing or tampered cookie starts a new,
// empty session.
type SessionMiddleware struct {
	tokens outbound.SessionTokenService
	ttl    time.Duration
	secure bool
	logger logger.Logger
}

func NewSessionMiddleware(cfg SessionConfig) *SessionMiddleware {
	return &SessionMiddleware{
		tokens: cfg.Tokens,
		ttl:    cfg.TTL,
		secure: cfg.Secure,
		logger: cfg.Logger,
	}
}

func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := m.sessionID(r)
		if sessionID == "" {
			sessionID = uuid.NewString()
			token, err := m.tokens.IssueSessionToken(sessionID)
			if err != nil {
				m.logger.Error(r.Context(), "Failed to issue session cookie", err, nil)
				response.InternalServerError(w, "Internal server error")
				return
			}
			http.SetCookie(w, m.cookie(token))
		}

		ctx := outbound.ContextWithSessionID(r.Context(), sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Rotate binds the browser to sessionID with a freshly signed cookie. It is
// called after sign-in so a session id known before login is never the one
// that carries credentials.
func (m *SessionMiddleware) Rotate(w http.ResponseWriter, sessionID string) error {
	token, err := m.tokens.IssueSessionToken(sessionID)
	if err != nil {
		return err
	}
	http.SetCookie(w, m.cookie(token))
	return nil
}

func (m *SessionMiddleware) sessionID(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || !validator.ValidateJWT(c.Value) {
		return ""
	}
	sessionID, err := m.tokens.ParseSessionToken(c.Value)
	if err != nil {
		m.logger.Debug(r.Context(), "Discarding invalid session cookie", map[string]interface{}{"error": err.Error()})
		return ""
	}
	return sessionID
}

func (m *SessionMiddleware) cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	}
}
