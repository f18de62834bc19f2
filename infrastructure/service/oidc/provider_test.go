package oidc

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/securemedai/portal/domain/entity"
)

const (
	testIssuer   = "https://issuer.test"
	testClientID = "portal-client"
)

type fixture struct {
	key      *rsa.PrivateKey
	provider *Provider
	server   *httptest.Server
	lastForm url.Values
}

func (f *fixture) idToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	base := jwt.MapClaims{
		"iss": testIssuer,
		"aud": testClientID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, base).SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fixture{key: key}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.lastForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "provider-access",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "provider-refresh",
			"id_token":      f.idToken(t, jwt.MapClaims{"sub": "sub-42", "email": "jane@x.io", "name": "Jane Doe"}),
		})
	}))
	t.Cleanup(f.server.Close)

	verifier := oidc.NewVerifier(testIssuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}, &oidc.Config{ClientID: testClientID})
	oauthCfg := &oauth2.Config{
		ClientID:    testClientID,
		RedirectURL: "http://portal.test/auth/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   testIssuer + "/authorize",
			TokenURL:  f.server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{oidc.ScopeOpenID, "email"},
	}
	f.provider = newProvider(issuerName(testIssuer), oauthCfg, verifier)
	return f
}

func TestProvider_AuthCodeURL(t *testing.T) {
	f := newFixture(t)

	raw := f.provider.AuthCodeURL("state-1", "challenge-1")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "challenge-1", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, testClientID, q.Get("client_id"))
}

func TestProvider_ExchangeCode(t *testing.T) {
	f := newFixture(t)

	cred, err := f.provider.ExchangeCode(context.Background(), "code-1", "verifier-1")
	require.NoError(t, err)

	assert.Equal(t, "sub-42", cred.Subject)
	assert.Equal(t, "jane@x.io", cred.Email)
	assert.Equal(t, "Jane Doe", cred.Name)
	assert.Equal(t, "provider-refresh", cred.RefreshToken)
	assert.NotEmpty(t, cred.IDToken)
	assert.Equal(t, "verifier-1", f.lastForm.Get("code_verifier"))
	assert.Equal(t, "code-1", f.lastForm.Get("code"))
}

func TestProvider_Refresh(t *testing.T) {
	f := newFixture(t)

	cred, err := f.provider.Refresh(context.Background(), entityCred("old-refresh"))
	require.NoError(t, err)
	assert.Equal(t, "refresh_token", f.lastForm.Get("grant_type"))
	assert.Equal(t, "old-refresh", f.lastForm.Get("refresh_token"))
	assert.Equal(t, "sub-42", cred.Subject)

	_, err = f.provider.Refresh(context.Background(), entityCred(""))
	assert.Error(t, err)
}

func TestProvider_VerifyIDToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		cred, err := f.provider.VerifyIDToken(ctx, f.idToken(t, jwt.MapClaims{"sub": "abc"}))
		require.NoError(t, err)
		assert.Equal(t, "abc", cred.Subject)
		assert.Empty(t, cred.RefreshToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		_, err := f.provider.VerifyIDToken(ctx, f.idToken(t, jwt.MapClaims{"sub": "abc", "aud": "someone-else"}))
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := f.provider.VerifyIDToken(ctx, f.idToken(t, jwt.MapClaims{"sub": "abc", "exp": time.Now().Add(-time.Hour).Unix()}))
		assert.Error(t, err)
	})

	t.Run("missing subject", func(t *testing.T) {
		_, err := f.provider.VerifyIDToken(ctx, f.idToken(t, jwt.MapClaims{}))
		assert.Error(t, err)
	})
}

func TestProvider_BeginAuth(t *testing.T) {
	f := newFixture(t)

	req, err := f.provider.BeginAuth()
	require.NoError(t, err)
	require.NotEmpty(t, req.State)
	require.NotEmpty(t, req.CodeVerifier)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, req.State, q.Get("state"))
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(req.CodeVerifier), q.Get("code_challenge"))
}

func TestNewPKCE(t *testing.T) {
	verifier, challenge := NewPKCE()
	sum := sha256.Sum256([]byte(verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), challenge)

	s1, err := NewState()
	require.NoError(t, err)
	s2, err := NewState()
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
}

func entityCred(refresh string) entity.FederatedCredential {
	return entity.FederatedCredential{Subject: "sub-42", RefreshToken: refresh}
}
