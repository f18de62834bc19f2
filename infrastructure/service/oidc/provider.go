// Package oidc signs users in with an external OpenID Connect provider using
// the authorization code flow with PKCE.
package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
)

type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

type Provider struct {
	name        string
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
}

var _ outbound.FederatedProvider = (*Provider)(nil)

// New discovers the issuer's endpoints and keys.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" {
		return nil, errors.New("oidc config missing issuer or client id")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init oidc provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, oidc.ScopeOfflineAccess, "profile", "email"}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	return newProvider(issuerName(cfg.Issuer), oauthCfg, verifier), nil
}

func newProvider(name string, oauthCfg *oauth2.Config, verifier *oidc.IDTokenVerifier) *Provider {
	return &Provider{name: name, oauthConfig: oauthCfg, verifier: verifier}
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) BeginAuth() (*outbound.AuthRequest, error) {
	state, err := NewState()
	if err != nil {
		return nil, err
	}
	verifier, challenge := NewPKCE()
	return &outbound.AuthRequest{
		URL:          p.AuthCodeURL(state, challenge),
		State:        state,
		CodeVerifier: verifier,
	}, nil
}

func (p *Provider) AuthCodeURL(state, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*entity.FederatedCredential, error) {
	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("oidc token exchange failed: %w", err)
	}
	return p.credentialFromToken(ctx, token)
}

func (p *Provider) VerifyIDToken(ctx context.Context, rawIDToken string) (*entity.FederatedCredential, error) {
	return p.verify(ctx, rawIDToken, "")
}

// Refresh mints a new ID token; the provider may rotate the refresh token.
func (p *Provider) Refresh(ctx context.Context, cred entity.FederatedCredential) (*entity.FederatedCredential, error) {
	if cred.RefreshToken == "" {
		return nil, outbound.ErrFederatedTokenUnavailable
	}
	source := p.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("oidc refresh failed: %w", err)
	}
	next, err := p.credentialFromToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}
	return next, nil
}

func (p *Provider) credentialFromToken(ctx context.Context, token *oauth2.Token) (*entity.FederatedCredential, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("oidc provider did not return id_token")
	}
	return p.verify(ctx, rawIDToken, token.RefreshToken)
}

func (p *Provider) verify(ctx context.Context, rawIDToken, refreshToken string) (*entity.FederatedCredential, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("oidc id_token verification failed: %w", err)
	}

	var claims struct {
		Subject string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidc id_token claims parse failed: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("oidc id_token missing subject")
	}

	return &entity.FederatedCredential{
		Provider:     p.name,
		Subject:      claims.Subject,
		Email:        claims.Email,
		Name:         claims.Name,
		IDToken:      rawIDToken,
		RefreshToken: refreshToken,
		Expiry:       idToken.Expiry,
	}, nil
}

func issuerName(issuer string) string {
	return "oidc:" + issuer
}
