package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/securemedai/portal/application/port/inbound"
	"github.com/securemedai/portal/infrastructure/service/logger"
)

const keyPrefix = "portal:ratelimit:"

// rateLimitService implementasi RateLimitService dengan Redis
type rateLimitService struct {
	redisClient *goredis.Client
	logger      logger.Logger
}

// RateLimitConfig configuration untuk rate limiting
type RateLimitConfig struct {
	Enabled       bool
	IPAttempts    int
	IPWindow      time.Duration
	BlockDuration time.Duration
}

// NewRateLimitService returns a Redis-backed limiter shared by every portal
// instance. A nil client falls back to a per-process limiter.
func NewRateLimitService(config RateLimitConfig, client *goredis.Client, log logger.Logger) inbound.RateLimitService {
	fields := map[string]interface{}{
		"ip_attempts":    config.IPAttempts,
		"ip_window":      config.IPWindow.String(),
		"block_duration": config.BlockDuration.String(),
	}
	switch {
	case !config.Enabled:
		log.Info(context.Background(), "Rate limiting disabled", nil)
		return &noopRateLimitService{}
	case client == nil:
		log.Info(context.Background(), "Rate limiting initialized in memory", fields)
		return NewMemoryRateLimitService(log)
	default:
		log.Info(context.Background(), "Rate limiting initialized on Redis", fields)
		return &rateLimitService{redisClient: client, logger: log}
	}
}

// CheckLimit reports whether key is still under limit.
func (s *rateLimitService) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	currentCount, err := s.GetAttempts(ctx, key)
	if err != nil {
		return false, err
	}

	isUnderLimit := currentCount < limit
	s.logger.Debug(ctx, "Rate limit check", map[string]interface{}{
		"key":         key,
		"current":     currentCount,
		"limit":       limit,
		"under_limit": isUnderLimit,
	})
	return isUnderLimit, nil
}

// Increment menambah counter untuk key tertentu
func (s *rateLimitService) Increment(ctx context.Context, key string, window time.Duration) error {
	pipeline := s.redisClient.TxPipeline()
	incrCmd := pipeline.Incr(ctx, keyPrefix+key)
	pipeline.Expire(ctx, keyPrefix+key, window)

	if _, err := pipeline.Exec(ctx); err != nil {
		s.logger.Error(ctx, "Failed to increment rate limit counter", err, map[string]interface{}{"key": key})
		return fmt.Errorf("failed to increment rate limit: %w", err)
	}

	s.logger.Info(ctx, "Rate limit incremented", map[string]interface{}{
		"key":    key,
		"count":  incrCmd.Val(),
		"window": window.String(),
	})
	return nil
}

// Block memblokir key untuk durasi tertentu
func (s *rateLimitService) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	blockKey := keyPrefix + "blocked:" + key
	blockData := map[string]interface{}{
		"reason":         reason,
		"blocked_at":     time.Now().Unix(),
		"duration":       duration.Seconds(),
		"correlation_id": logger.CorrelationIDFromContext(ctx),
	}

	pipeline := s.redisClient.TxPipeline()
	pipeline.HSet(ctx, blockKey, blockData)
	pipeline.Expire(ctx, blockKey, duration)
	if _, err := pipeline.Exec(ctx); err != nil {
		s.logger.Error(ctx, "Failed to block key", err, map[string]interface{}{"key": key})
		return fmt.Errorf("failed to block key: %w", err)
	}

	s.logger.Warn(ctx, "Key blocked due to rate limit exceeded", map[string]interface{}{
		"key":      key,
		"duration": duration.String(),
		"reason":   reason,
	})
	return nil
}

// IsBlocked mengecek apakah key sedang diblokir
func (s *rateLimitService) IsBlocked(ctx context.Context, key string) (bool, error) {
	exists, err := s.redisClient.Exists(ctx, keyPrefix+"blocked:"+key).Result()
	if err != nil {
		s.logger.Error(ctx, "Failed to check block status", err, map[string]interface{}{"key": key})
		return false, fmt.Errorf("failed to check block status: %w", err)
	}
	if exists > 0 {
		s.logger.Warn(ctx, "Key is blocked", map[string]interface{}{"key": key})
	}
	return exists > 0, nil
}

// GetAttempts mendapatkan jumlah attempts untuk key
func (s *rateLimitService) GetAttempts(ctx context.Context, key string) (int, error) {
	count, err := s.redisClient.Get(ctx, keyPrefix+key).Int()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		s.logger.Error(ctx, "Failed to get attempts count", err, map[string]interface{}{"key": key})
		return 0, fmt.Errorf("failed to get attempts: %w", err)
	}
	return count, nil
}

type counter struct {
	count   int
	expires time.Time
}

// memoryRateLimitService counts attempts inside one process. It serves
// deployments without Redis.
type memoryRateLimitService struct {
	logger logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	counters  map[string]counter
	blocked   map[string]time.Time
	nextSweep time.Time
}

const sweepInterval = time.Minute

func NewMemoryRateLimitService(log logger.Logger) inbound.RateLimitService {
	return &memoryRateLimitService{
		logger:   log,
		now:      time.Now,
		counters: make(map[string]counter),
		blocked:  make(map[string]time.Time),
	}
}

func (s *memoryRateLimitService) CheckLimit(ctx context.Context, key string, limit int, _ time.Duration) (bool, error) {
	count, _ := s.GetAttempts(ctx, key)
	return count < limit, nil
}

func (s *memoryRateLimitService) Increment(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweepLocked(now)
	w, ok := s.counters[key]
	if !ok || !now.Before(w.expires) {
		w = counter{}
	}
	w.count++
	w.expires = now.Add(ttl)
	s.counters[key] = w
	return nil
}

func (s *memoryRateLimitService) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	s.mu.Lock()
	now := s.now()
	s.sweepLocked(now)
	s.blocked[key] = now.Add(duration)
	s.mu.Unlock()

	s.logger.Warn(ctx, "Key blocked due to rate limit exceeded", map[string]interface{}{
		"key":      key,
		"duration": duration.String(),
		"reason":   reason,
	})
	return nil
}

func (s *memoryRateLimitService) IsBlocked(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.blocked[key]
	if !ok {
		return false, nil
	}
	if !s.now().Before(until) {
		delete(s.blocked, key)
		return false, nil
	}
	return true, nil
}

func (s *memoryRateLimitService) GetAttempts(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.counters[key]
	if !ok {
		return 0, nil
	}
	if !s.now().Before(w.expires) {
		delete(s.counters, key)
		return 0, nil
	}
	return w.count, nil
}

// sweepLocked drops lapsed counters and blocks at most once per sweepInterval
// so keys that are never read again do not accumulate.
func (s *memoryRateLimitService) sweepLocked(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	s.nextSweep = now.Add(sweepInterval)
	for k, w := range s.counters {
		if !now.Before(w.expires) {
			delete(s.counters, k)
		}
	}
	for k, until := range s.blocked {
		if !now.Before(until) {
			delete(s.blocked, k)
		}
	}
}

// noopRateLimitService implementasi no-op untuk ketika rate limiting disabled
type noopRateLimitService struct{}

func (n *noopRateLimitService) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

func (n *noopRateLimitService) Increment(ctx context.Context, key string, window time.Duration) error {
	return nil
}

func (n *noopRateLimitService) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	return nil
}

func (n *noopRateLimitService) IsBlocked(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (n *noopRateLimitService) GetAttempts(ctx context.Context, key string) (int, error) {
	return 0, nil
}
