// Package federated owns the per-browser federated sign-in session: it
// records what the provider proved, mints fresh provider tokens and signs out.
package federated

import (
	"context"
	"time"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
)

// expirySkew renews tokens that would expire while a request is in flight.
const expirySkew = time.Minute

type Service struct {
	provider outbound.FederatedProvider
	store    outbound.FederatedSessionStore
	logger   outbound.Logger
	now      func() time.Time
}

// NewService returns nil when no provider is configured; a nil *Service
// reports federated sign-in as disabled.
func NewService(provider outbound.FederatedProvider, store outbound.FederatedSessionStore, log outbound.Logger) *Service {
	if provider == nil || store == nil {
		return nil
	}
	return &Service{provider: provider, store: store, logger: log, now: time.Now}
}

func (s *Service) Enabled() bool {
	return s != nil
}

func (s *Service) Provider() outbound.FederatedProvider {
	return s.provider
}

func (s *Service) Store() outbound.FederatedSessionStore {
	return s.store
}

// Active reports whether the browser has a provider session. Lookup
// failures count as inactive.
func (s *Service) Active(ctx context.Context, sessionID string) bool {
	cred, err := s.store.Load(ctx, sessionID)
	if err != nil {
		s.logger.Warn(ctx, "Failed to load federated session", map[string]interface{}{"error": err.Error()})
		return false
	}
	return cred != nil
}

// Establish records an active provider session for the browser.
func (s *Service) Establish(ctx context.Context, sessionID string, cred entity.FederatedCredential) error {
	return s.store.Save(ctx, sessionID, cred)
}

// IDToken returns a provider token that is valid right now, refreshing it
// when the cached one is about to expire. active is false when the browser
// has no provider session.
func (s *Service) IDToken(ctx context.Context, sessionID string) (string, bool, error) {
	cred, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return "", false, err
	}
	if cred == nil {
		return "", false, nil
	}
	if !cred.Expired(s.now().Add(expirySkew)) && cred.IDToken != "" {
		return cred.IDToken, true, nil
	}

	fresh, err := s.provider.Refresh(ctx, *cred)
	if err != nil {
		return "", true, err
	}
	if err := s.store.Save(ctx, sessionID, *fresh); err != nil {
		s.logger.Warn(ctx, "Failed to persist refreshed federated token", map[string]interface{}{"error": err.Error()})
	}
	return fresh.IDToken, true, nil
}

// SignOut ends the provider session; watchers observe it as inactive.
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	outbound.LogAuthEvent(ctx, s.logger, "federated_sign_out", sessionID, "", true, nil)
	return nil
}
