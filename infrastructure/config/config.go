package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SessionBackendMemory   = "memory"
	SessionBackendRedis    = "redis"
	SessionBackendPostgres = "postgres"
)

type Config struct {
	ServerHost  string
	ServerPort  string
	Environment string

	// BackendBaseURL is the origin of the hospital REST API.
	BackendBaseURL string
	BackendTimeout time.Duration

	SessionBackend      string
	SessionSecret       string
	SessionTTL          time.Duration
	SessionCookieSecure bool
	RedisURL            string
	DatabaseURL         string

	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string

	ResolverIdleTTL time.Duration

	RateLimitEnabled       bool
	RateLimitIPAttempts    int
	RateLimitIPWindow      time.Duration
	RateLimitBlockDuration time.Duration

	LogLevel  string
	LogFormat string

	CORSEnabled          bool
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	// TrustedProxies lists the peers (IPs or CIDRs) whose forwarding
	// headers are believed. Empty means the socket address is used as is.
	TrustedProxies []string
}

var (
	ErrMissingBackendURL    = errors.New("BACKEND_BASE_URL is required")
	ErrInvalidBackendURL    = errors.New("BACKEND_BASE_URL must be an absolute http(s) URL")
	ErrMissingSessionSecret = errors.New("SESSION_SECRET is required")
	ErrWeakSessionSecret    = errors.New("SESSION_SECRET must be at least 32 characters")
	ErrInvalidSessionStore  = errors.New("SESSION_BACKEND must be memory, redis or postgres")
	ErrMissingDatabaseURL   = errors.New("DATABASE_URL is required when SESSION_BACKEND=postgres")
	ErrInvalidDuration      = errors.New("invalid duration format")
	ErrIncompleteOIDC       = errors.New("OIDC_CLIENT_SECRET and OIDC_REDIRECT_URL are required when OIDC is enabled")
	ErrInvalidTrustedProxy  = errors.New("TRUSTED_PROXIES entries must be IP addresses or CIDR ranges")
)

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		ServerHost:  getEnvOrDefault("SERVER_HOST", "localhost"),
		ServerPort:  getEnvOrDefault("SERVER_PORT", "8080"),
		Environment: getEnvOrDefault("ENV", "development"),

		BackendBaseURL: strings.TrimRight(os.Getenv("BACKEND_BASE_URL"), "/"),

		SessionBackend:      strings.ToLower(getEnvOrDefault("SESSION_BACKEND", SessionBackendMemory)),
		SessionSecret:       os.Getenv("SESSION_SECRET"),
		SessionCookieSecure: getEnvOrDefaultBool("SESSION_COOKIE_SECURE", true),
		RedisURL:            getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),

		OIDCIssuer:       os.Getenv("OIDC_ISSUER"),
		OIDCClientID:     os.Getenv("OIDC_CLIENT_ID"),
		OIDCClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
		OIDCRedirectURL:  os.Getenv("OIDC_REDIRECT_URL"),

		RateLimitEnabled:    getEnvOrDefaultBool("RATE_LIMIT_ENABLED", false),
		RateLimitIPAttempts: getEnvOrDefaultInt("RATE_LIMIT_IP_ATTEMPTS", 10),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),

		CORSEnabled:          getEnvOrDefaultBool("CORS_ENABLED", false),
		CORSAllowCredentials: getEnvOrDefaultBool("CORS_ALLOW_CREDENTIALS", true),
		CORSAllowedOrigins:   parseAllowedOrigins(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "")),

		TrustedProxies: parseAllowedOrigins(os.Getenv("TRUSTED_PROXIES")),
	}

	if err := cfg.loadDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadDurations() error {
	durations := []struct {
		key    string
		def    string
		target *time.Duration
	}{
		{"BACKEND_TIMEOUT", "15", &c.BackendTimeout},
		{"SESSION_TTL", "86400", &c.SessionTTL},
		{"RESOLVER_IDLE_TTL", "1800", &c.ResolverIdleTTL},
		{"RATE_LIMIT_IP_WINDOW", "900", &c.RateLimitIPWindow},
		{"RATE_LIMIT_BLOCK_DURATION", "1800", &c.RateLimitBlockDuration},
	}
	for _, d := range durations {
		v, err := parseDuration(getEnvOrDefault(d.key, d.def))
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, ErrInvalidDuration)
		}
		*d.target = v
	}
	return nil
}

// Validate checks required settings and cross-field rules.
func (c *Config) Validate() error {
	if c.BackendBaseURL == "" {
		return ErrMissingBackendURL
	}
	u, err := url.Parse(c.BackendBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBackendURL
	}

	if c.SessionSecret == "" {
		return ErrMissingSessionSecret
	}
	if len(c.SessionSecret) < 32 {
		return ErrWeakSessionSecret
	}

	switch c.SessionBackend {
	case SessionBackendMemory, SessionBackendRedis:
	case SessionBackendPostgres:
		if c.DatabaseURL == "" {
			return ErrMissingDatabaseURL
		}
	default:
		return ErrInvalidSessionStore
	}

	if c.FederatedEnabled() && (c.OIDCClientSecret == "" || c.OIDCRedirectURL == "") {
		return ErrIncompleteOIDC
	}

	for _, p := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
			return fmt.Errorf("%q: %w", p, ErrInvalidTrustedProxy)
		}
	}
	return nil
}

// FederatedEnabled reports whether federated sign-in is configured.
func (c *Config) FederatedEnabled() bool {
	return c.OIDCIssuer != "" && c.OIDCClientID != ""
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// parseDuration interprets plain integers as seconds, anything else as a Go duration.
func parseDuration(value string) (time.Duration, error) {
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(value)
}

func parseAllowedOrigins(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			res = append(res, trimmed)
		}
	}
	return res
}
