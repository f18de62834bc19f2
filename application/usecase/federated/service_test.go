package federated

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
	"github.com/securemedai/portal/infrastructure/adapter/memory"
	"github.com/securemedai/portal/infrastructure/service/logger"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) BeginAuth() (*outbound.AuthRequest, error) {
	return &outbound.AuthRequest{URL: "https://idp.test/auth?state=s", State: "s", CodeVerifier: "v"}, nil
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code, verifier string) (*entity.FederatedCredential, error) {
	args := m.Called(ctx, code, verifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.FederatedCredential), args.Error(1)
}

func (m *MockProvider) VerifyIDToken(ctx context.Context, raw string) (*entity.FederatedCredential, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.FederatedCredential), args.Error(1)
}

func (m *MockProvider) Refresh(ctx context.Context, cred entity.FederatedCredential) (*entity.FederatedCredential, error) {
	args := m.Called(ctx, cred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.FederatedCredential), args.Error(1)
}

func TestNewService_DisabledWithoutProvider(t *testing.T) {
	svc := NewService(nil, memory.NewFederatedStore(), logger.NewNopLogger())
	assert.Nil(t, svc)
	assert.False(t, svc.Enabled())
}

func TestService_IDToken(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no provider session", func(t *testing.T) {
		provider := new(MockProvider)
		svc := NewService(provider, memory.NewFederatedStore(), logger.NewNopLogger())

		token, active, err := svc.IDToken(ctx, "s1")
		require.NoError(t, err)
		assert.False(t, active)
		assert.Empty(t, token)
	})

	t.Run("cached token still valid", func(t *testing.T) {
		provider := new(MockProvider)
		store := memory.NewFederatedStore()
		svc := NewService(provider, store, logger.NewNopLogger())
		svc.now = func() time.Time { return now }
		require.NoError(t, store.Save(ctx, "s1", entity.FederatedCredential{Subject: "u", IDToken: "cached", Expiry: now.Add(time.Hour)}))

		token, active, err := svc.IDToken(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, active)
		assert.Equal(t, "cached", token)
		provider.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
	})

	t.Run("expiring token is refreshed", func(t *testing.T) {
		provider := new(MockProvider)
		store := memory.NewFederatedStore()
		svc := NewService(provider, store, logger.NewNopLogger())
		svc.now = func() time.Time { return now }
		old := entity.FederatedCredential{Subject: "u", IDToken: "old", RefreshToken: "r", Expiry: now.Add(30 * time.Second)}
		require.NoError(t, store.Save(ctx, "s1", old))
		provider.On("Refresh", mock.Anything, old).
			Return(&entity.FederatedCredential{Subject: "u", IDToken: "minted", RefreshToken: "r", Expiry: now.Add(time.Hour)}, nil)

		token, active, err := svc.IDToken(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, active)
		assert.Equal(t, "minted", token)

		saved, err := store.Load(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "minted", saved.IDToken)
		provider.AssertExpectations(t)
	})

	t.Run("refresh failure keeps session active", func(t *testing.T) {
		provider := new(MockProvider)
		store := memory.NewFederatedStore()
		svc := NewService(provider, store, logger.NewNopLogger())
		svc.now = func() time.Time { return now }
		require.NoError(t, store.Save(ctx, "s1", entity.FederatedCredential{Subject: "u", Expiry: now.Add(-time.Minute)}))
		provider.On("Refresh", mock.Anything, mock.Anything).Return(nil, errors.New("idp down"))

		_, active, err := svc.IDToken(ctx, "s1")
		assert.Error(t, err)
		assert.True(t, active)
	})
}

func TestService_SignOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memory.NewFederatedStore()
	svc := NewService(new(MockProvider), store, logger.NewNopLogger())
	require.NoError(t, svc.Establish(ctx, "s1", entity.FederatedCredential{Subject: "u"}))

	events, err := store.Watch(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, (<-events).Active)

	require.NoError(t, svc.SignOut(ctx, "s1"))
	assert.False(t, (<-events).Active)

	cred, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, cred)
}
