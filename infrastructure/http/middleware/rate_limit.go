package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/securemedai/portal/application/port/inbound"
	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/infrastructure/http/response"
	"github.com/securemedai/portal/infrastructure/service/logger"
)

type RateLimitMiddleware struct {
	rateLimitService inbound.RateLimitService
	logger           logger.Logger
}

func NewRateLimitMiddleware(rateLimitService inbound.RateLimitService, logger logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		logger:           logger,
	}
}

type limitTier struct {
	name   string
	limit  int
	window time.Duration
	block  time.Duration
}

// Password logins are throttled by the auth use case; this middleware
// covers the remaining surface.
func tierFor(path string) limitTier {
	switch {
	case strings.HasPrefix(path, "/auth/federated/"):
		return limitTier{name: "federated", limit: 30, window: 15 * time.Minute, block: 30 * time.Minute}
	case path == "/signup":
		return limitTier{name: "signup", limit: 10, window: time.Hour, block: time.Hour}
	default:
		return limitTier{name: "general", limit: 300, window: time.Minute, block: 5 * time.Minute}
	}
}

func (m *RateLimitMiddleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip rate limiting if service is not available
		if m.rateLimitService == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		clientIP := inbound.ClientIPFromContext(ctx)
		tier := tierFor(r.URL.Path)
		key := fmt.Sprintf("%s:ip:%s", tier.name, clientIP)

		isBlocked, err := m.rateLimitService.IsBlocked(ctx, key)
		if err != nil {
			// fail open
			m.logger.Error(ctx, "Failed to check block status", err, map[string]interface{}{"ip": clientIP, "key": key})
		}
		if isBlocked {
			outbound.LogSecurityEvent(ctx, m.logger, "rate_limit_blocked", "MEDIUM", map[string]interface{}{
				"ip":        clientIP,
				"path":      r.URL.Path,
				"key":       key,
				"userAgent": r.UserAgent(),
			})
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(tier.block.Seconds())))
			response.TooManyRequests(w, "Too many requests. Please try again later.")
			return
		}

		allowed, err := m.rateLimitService.CheckLimit(ctx, key, tier.limit, tier.window)
		if err != nil {
			m.logger.Error(ctx, "Failed to check rate limit", err, map[string]interface{}{"ip": clientIP, "key": key})
			allowed = true
		}
		if !allowed {
			if err := m.rateLimitService.Block(ctx, key, tier.block, "Rate limit exceeded"); err != nil {
				m.logger.Error(ctx, "Failed to block IP", err, map[string]interface{}{"ip": clientIP, "key": key})
			}
			outbound.LogSecurityEvent(ctx, m.logger, "rate_limit_exceeded", "HIGH", map[string]interface{}{
				"ip":        clientIP,
				"path":      r.URL.Path,
				"key":       key,
				"userAgent": r.UserAgent(),
			})
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(tier.block.Seconds())))
			response.TooManyRequests(w, "Too many requests. Please try again later.")
			return
		}

		if err := m.rateLimitService.Increment(ctx, key, tier.window); err != nil {
			m.logger.Error(ctx, "Failed to count request", err, map[string]interface{}{"ip": clientIP, "key": key})
		}
		next.ServeHTTP(w, r)
	})
}
