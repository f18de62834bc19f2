package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/application/usecase"
	"github.com/securemedai/portal/application/usecase/federated"
	"github.com/securemedai/portal/application/usecase/identity"
	"github.com/securemedai/portal/infrastructure/adapter/backend"
	"github.com/securemedai/portal/infrastructure/adapter/memory"
	"github.com/securemedai/portal/infrastructure/adapter/postgres"
	"github.com/securemedai/portal/infrastructure/adapter/redis"
	"github.com/securemedai/portal/infrastructure/config"
	"github.com/securemedai/portal/infrastructure/http/handler"
	"github.com/securemedai/portal/infrastructure/http/middleware"
	"github.com/securemedai/portal/infrastructure/http/router"
	"github.com/securemedai/portal/infrastructure/http/sse"
	"github.com/securemedai/portal/infrastructure/service/jwt"
	"github.com/securemedai/portal/infrastructure/service/logger"
	"github.com/securemedai/portal/infrastructure/service/oidc"
	"github.com/securemedai/portal/infrastructure/service/ratelimit"
	"github.com/securemedai/portal/infrastructure/service/sealer"
)

const purgeInterval = 15 * time.Minute

// stores groups the per-backend persistence adapters.
type stores struct {
	sessions  outbound.SessionStore
	federated outbound.FederatedSessionStore
	notifier  outbound.Notifier
	redis     *goredis.Client
	db        *sql.DB
	purger    postgres.SessionStore
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	structuredLogger := logger.NewStructuredLogger(logger.LoggerConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "securemed-portal",
	})
	structuredLogger.Info(ctx, "Application starting", map[string]interface{}{
		"env":               cfg.Environment,
		"session_backend":   cfg.SessionBackend,
		"federated_enabled": cfg.FederatedEnabled(),
	})

	st, err := openStores(ctx, cfg)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize session storage", err, map[string]interface{}{"backend": cfg.SessionBackend})
		os.Exit(1)
	}
	defer st.close()

	tokenService, err := jwt.NewJWTService(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize session cookie signer", err, nil)
		os.Exit(1)
	}

	var federatedService *federated.Service
	if cfg.FederatedEnabled() {
		provider, err := oidc.New(ctx, oidc.Config{
			Issuer:       cfg.OIDCIssuer,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
		})
		if err != nil {
			structuredLogger.Error(ctx, "Failed to initialize identity provider", err, map[string]interface{}{"issuer": cfg.OIDCIssuer})
			os.Exit(1)
		}
		federatedService = federated.NewService(provider, st.federated, structuredLogger)
		structuredLogger.Info(ctx, "Federated sign-in enabled", map[string]interface{}{"provider": provider.Name()})
	}

	rateLimitService := ratelimit.NewRateLimitService(ratelimit.RateLimitConfig{
		Enabled:       cfg.RateLimitEnabled,
		IPAttempts:    cfg.RateLimitIPAttempts,
		IPWindow:      cfg.RateLimitIPWindow,
		BlockDuration: cfg.RateLimitBlockDuration,
	}, st.redis, structuredLogger)

	streamer := sse.NewStreamer(structuredLogger)
	notifier := sse.NewNotifier(st.notifier, streamer)

	poolConfig := identity.PoolConfig{
		Store:   st.sessions,
		Logger:  structuredLogger,
		IdleTTL: cfg.ResolverIdleTTL,
	}
	gatewayConfig := backend.GatewayConfig{
		BaseURL:  cfg.BackendBaseURL,
		Timeout:  cfg.BackendTimeout,
		Store:    st.sessions,
		Notifier: notifier,
		Logger:   structuredLogger,
	}
	// Left as untyped nil when disabled so nil checks downstream hold.
	if federatedService != nil {
		poolConfig.Federated = st.federated
		gatewayConfig.Federated = federatedService
	}
	pool := identity.NewPool(poolConfig)
	gateway := backend.NewGateway(gatewayConfig)
	gateway.OnInvalidate(pool)
	gateway.OnInvalidate(streamer)

	authUseCase := usecase.NewAuthUseCase(
		backend.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout, structuredLogger),
		st.sessions,
		federatedService,
		pool,
		rateLimitService,
		notifier,
		structuredLogger,
		usecase.LoginLimits{
			IPAttempts:    cfg.RateLimitIPAttempts,
			IPWindow:      cfg.RateLimitIPWindow,
			BlockDuration: cfg.RateLimitBlockDuration,
		},
	)

	sessions := middleware.NewSessionMiddleware(middleware.SessionConfig{
		Tokens: tokenService,
		TTL:    cfg.SessionTTL,
		Secure: cfg.SessionCookieSecure,
		Logger: structuredLogger,
	})

	routerConfig := router.Config{
		Auth:    handler.NewAuthHandler(authUseCase, sessions, cfg.SessionCookieSecure, structuredLogger),
		Views:   handler.NewViewHandler(),
		API:     handler.NewAPIHandler(gateway, pool, notifier, structuredLogger),
		Health:  handler.NewHealthHandler(cfg.FederatedEnabled(), cfg.SessionBackend),
		Events:  streamer,
		Session: sessions,
		Gate:    middleware.NewRoleGate(pool, structuredLogger),
		Logger:  structuredLogger,
	}
	if cfg.RateLimitEnabled {
		routerConfig.RateLimit = middleware.NewRateLimitMiddleware(rateLimitService, structuredLogger)
	}
	routerConfig.TrustedProxies, err = middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		structuredLogger.Error(ctx, "Invalid trusted proxies", err, nil)
		os.Exit(1)
	}
	if cfg.CORSEnabled {
		routerConfig.CORSAllowedOrigins = cfg.CORSAllowedOrigins
		routerConfig.CORSAllowCredentials = cfg.CORSAllowCredentials
	}

	go pool.Run(ctx)
	if st.purger != nil {
		go purgeExpiredSessions(ctx, st.purger, structuredLogger)
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.New(routerConfig),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.BackendTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		structuredLogger.Info(ctx, "Starting server", map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			structuredLogger.Error(ctx, "Server failed to start", err, map[string]interface{}{
				"host": cfg.ServerHost,
				"port": cfg.ServerPort,
			})
			stop()
		}
	}()

	<-ctx.Done()
	structuredLogger.Info(context.Background(), "Shutting down server...", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(shutdownCtx, "Server forced to shutdown", err, nil)
	}
	structuredLogger.Info(shutdownCtx, "Server exited", nil)
}

// openStores builds the session store selected by SESSION_BACKEND. Federated
// state and notifications follow Redis when it is the session backend and
// stay in process otherwise.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{
		sessions:  memory.NewSessionStore(),
		federated: memory.NewFederatedStore(),
		notifier:  memory.NewNotifier(),
	}
	if cfg.SessionBackend == config.SessionBackendMemory {
		return st, nil
	}

	seal, err := sealer.New(cfg.SessionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sealer: %w", err)
	}

	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		st.redis = client
		st.sessions = redis.NewSessionStore(client, seal, cfg.SessionTTL)
		st.federated = redis.NewFederatedStore(client, seal, cfg.SessionTTL)
		st.notifier = redis.NewNotifier(client)
	case config.SessionBackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.db = db
		st.purger = postgres.NewSessionStore(db, seal, cfg.SessionTTL)
		st.sessions = st.purger
	}
	return st, nil
}

func (s *stores) close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

func purgeExpiredSessions(ctx context.Context, store postgres.SessionStore, log logger.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				log.Error(ctx, "Failed to purge expired sessions", err, nil)
				continue
			}
			if n > 0 {
				log.Info(ctx, "Purged expired sessions", map[string]interface{}{"count": n})
			}
		}
	}
}
