package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/securemedai/portal/application/port/outbound"
	domainerr "github.com/securemedai/portal/domain/error"
	"github.com/securemedai/portal/infrastructure/service/logger"
)

// FederatedTokens is the view of the federated sign-in state the gateway
// needs: a fresh provider token while a session is active, and sign-out.
type FederatedTokens interface {
	IDToken(ctx context.Context, sessionID string) (token string, active bool, err error)
	SignOut(ctx context.Context, sessionID string) error
}

// InvalidationListener is told when a session was torn down after a 401.
type InvalidationListener interface {
	Invalidate(ctx context.Context, sessionID string)
}

type GatewayConfig struct {
	BaseURL   string
	Timeout   time.Duration
	Store     outbound.SessionStore
	Federated FederatedTokens
	Notifier  outbound.Notifier
	Logger    logger.Logger

	// MaxBodyBytes caps an upstream response. Defaults to 10 MiB.
	MaxBodyBytes int64
}

// Gateway sends authorized calls to the hospital API. It attaches the
// session credential and turns any 401 into a full session teardown.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	store      outbound.SessionStore
	federated  FederatedTokens
	notifier   outbound.Notifier
	logger     logger.Logger
	maxBody    int64

	mu        sync.RWMutex
	listeners []InvalidationListener
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = maxBodyBytes
	}
	return &Gateway{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		store:      cfg.Store,
		federated:  cfg.Federated,
		notifier:   cfg.Notifier,
		logger:     cfg.Logger,
		maxBody:    cfg.MaxBodyBytes,
	}
}

func (g *Gateway) OnInvalidate(l InvalidationListener) {
	g.mu.Lock()
	g.listeners = append(g.listeners, l)
	g.mu.Unlock()
}

// Do performs one authorized request. path may carry a query string.
// A 401 returns ErrSessionInvalid after teardown; any other status >= 400
// returns the response together with an *APIError.
func (g *Gateway) Do(ctx context.Context, method, path string, body io.Reader, header http.Header) (*Response, error) {
	sessionID, _ := outbound.SessionIDFromContext(ctx)

	if header == nil {
		header = http.Header{}
	} else {
		header = header.Clone()
	}
	header.Del("Authorization")
	header.Del("Cookie")
	if token := g.credential(ctx, sessionID); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := send(ctx, g.httpClient, method, g.baseURL+path, body, header, g.maxBody)
	if err != nil {
		g.logger.Error(ctx, "Backend request failed", err, map[string]interface{}{"method": method, "path": stripQuery(path)})
		appErr := domainerr.ErrExternalService(GenericErrorMessage, err)
		g.notify(ctx, sessionID, appErr.Message)
		return nil, appErr
	}
	logger.LogPerformance(ctx, g.logger, "backend "+method+" "+stripQuery(path), time.Since(start), map[string]interface{}{"status": resp.Status})

	switch {
	case resp.Status == http.StatusUnauthorized:
		g.teardown(ctx, sessionID)
		return nil, domainerr.ErrSessionInvalid
	case resp.Status >= http.StatusBadRequest:
		apiErr := &APIError{Status: resp.Status, Message: ExtractMessage(resp.Body, GenericErrorMessage), Body: resp.Body}
		g.notify(ctx, sessionID, apiErr.Message)
		return resp, apiErr
	}
	return resp, nil
}

// credential prefers a freshly minted federated token and falls back to the
// stored access token when minting fails.
func (g *Gateway) credential(ctx context.Context, sessionID string) string {
	if sessionID == "" {
		return ""
	}

	stored := ""
	sess, err := g.store.Get(ctx, sessionID)
	if err != nil {
		g.logger.Error(ctx, "Failed to read session", err, map[string]interface{}{"session_id": outbound.ShortID(sessionID)})
	} else {
		stored = sess.AccessToken
	}

	if g.federated == nil {
		return stored
	}
	token, active, err := g.federated.IDToken(ctx, sessionID)
	switch {
	case err != nil && active:
		g.logger.Warn(ctx, "Federated token unavailable, using stored credential", map[string]interface{}{
			"session_id": outbound.ShortID(sessionID),
			"error":      err.Error(),
		})
	case err != nil && !errors.Is(err, outbound.ErrFederatedTokenUnavailable):
		g.logger.Warn(ctx, "Federated lookup failed", map[string]interface{}{"error": err.Error()})
	case active && token != "":
		return token
	}
	return stored
}

func (g *Gateway) teardown(ctx context.Context, sessionID string) {
	outbound.LogSecurityEvent(ctx, g.logger, "session_invalidated", "MEDIUM", map[string]interface{}{
		"session_id": outbound.ShortID(sessionID),
		"reason":     "backend_401",
	})
	if sessionID == "" {
		return
	}

	if g.federated != nil {
		if err := g.federated.SignOut(ctx, sessionID); err != nil {
			g.logger.Error(ctx, "Federated sign-out failed", err, nil)
		}
	}
	if err := g.store.Clear(ctx, sessionID); err != nil {
		g.logger.Error(ctx, "Failed to clear session", err, nil)
	}

	g.mu.RLock()
	listeners := append([]InvalidationListener(nil), g.listeners...)
	g.mu.RUnlock()
	for _, l := range listeners {
		l.Invalidate(ctx, sessionID)
	}
}

func (g *Gateway) notify(ctx context.Context, sessionID, message string) {
	if g.notifier == nil || sessionID == "" {
		return
	}
	err := g.notifier.Push(ctx, sessionID, outbound.Notification{
		Level:     outbound.NotificationError,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		g.logger.Warn(ctx, "Failed to queue notification", map[string]interface{}{"error": err.Error()})
	}
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
