package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securemedai/portal/infrastructure/service/logger"
)

func TestNewRateLimitService(t *testing.T) {
	log := logger.NewNopLogger()

	_, ok := NewRateLimitService(RateLimitConfig{Enabled: false}, nil, log).(*noopRateLimitService)
	assert.True(t, ok)

	_, ok = NewRateLimitService(RateLimitConfig{Enabled: true}, nil, log).(*memoryRateLimitService)
	assert.True(t, ok)
}

func TestMemoryRateLimitService(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := NewMemoryRateLimitService(logger.NewNopLogger()).(*memoryRateLimitService)
	svc.now = func() time.Time { return now }

	key := "login:ip:10.0.0.1"
	for i := 0; i < 3; i++ {
		allowed, err := svc.CheckLimit(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d", i)
		require.NoError(t, svc.Increment(ctx, key, time.Minute))
	}

	allowed, err := svc.CheckLimit(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, svc.Block(ctx, key, 5*time.Minute, "Rate limit exceeded"))
	blocked, _ := svc.IsBlocked(ctx, key)
	assert.True(t, blocked)

	now = now.Add(2 * time.Minute)
	attempts, _ := svc.GetAttempts(ctx, key)
	assert.Equal(t, 0, attempts)
	blocked, _ = svc.IsBlocked(ctx, key)
	assert.True(t, blocked)

	now = now.Add(4 * time.Minute)
	blocked, _ = svc.IsBlocked(ctx, key)
	assert.False(t, blocked)
}

func TestMemoryRateLimitService_SweepsLapsedKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := NewMemoryRateLimitService(logger.NewNopLogger()).(*memoryRateLimitService)
	svc.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("login:ip:10.0.0.%d", i)
		require.NoError(t, svc.Increment(ctx, key, time.Minute))
		require.NoError(t, svc.Block(ctx, key, time.Minute, "Rate limit exceeded"))
	}
	assert.Len(t, svc.counters, 50)
	assert.Len(t, svc.blocked, 50)

	now = now.Add(2 * time.Minute)
	require.NoError(t, svc.Increment(ctx, "login:ip:10.0.1.1", time.Minute))
	assert.Len(t, svc.counters, 1)
	assert.Empty(t, svc.blocked)
}

func TestNoopRateLimitService(t *testing.T) {
	svc := &noopRateLimitService{}
	allowed, err := svc.CheckLimit(context.Background(), "k", 0, time.Second)
	require.NoError(t, err)
	assert.True(t, allowed)
	blocked, _ := svc.IsBlocked(context.Background(), "k")
	assert.False(t, blocked)
}
