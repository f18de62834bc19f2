// Package router assembles the portal's HTTP surface.
package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/securemedai/portal/domain/entity"
	"github.com/securemedai/portal/infrastructure/http/handler"
	"github.com/securemedai/portal/infrastructure/http/middleware"
	"github.com/securemedai/portal/infrastructure/http/sse"
	"github.com/securemedai/portal/infrastructure/service/logger"
)

type Config struct {
	Auth   *handler.AuthHandler
	Views  *handler.ViewHandler
	API    *handler.APIHandler
	Health *handler.HealthHandler
	Events *sse.Streamer

	Session   *middleware.SessionMiddleware
	Gate      *middleware.RoleGate
	RateLimit *middleware.RateLimitMiddleware
	Logger    logger.Logger

	// Routes defaults to entity.PortalRoutes.
	Routes []entity.RouteRule

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	TrustedProxies middleware.TrustedProxies
}

// New returns the portal handler. Correlation, client address and CORS wrap
// the router so they also apply to unmatched requests and preflights.
func New(cfg Config) http.Handler {
	routes := cfg.Routes
	if routes == nil {
		routes = entity.PortalRoutes
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", cfg.Health.Health).Methods(http.MethodGet)

	app := r.PathPrefix("/").Subrouter()
	app.Use(cfg.Session.Handler, middleware.RequestLogger(cfg.Logger))
	if cfg.RateLimit != nil {
		app.Use(cfg.RateLimit.RateLimit)
	}

	app.HandleFunc(entity.LoginPath, cfg.Auth.Login).Methods(http.MethodPost)
	app.HandleFunc("/signup", cfg.Auth.Signup).Methods(http.MethodPost)
	app.HandleFunc("/logout", cfg.Auth.Logout).Methods(http.MethodPost)
	app.HandleFunc("/auth/federated/login", cfg.Auth.FederatedLogin).Methods(http.MethodGet)
	app.HandleFunc("/auth/federated/callback", cfg.Auth.FederatedCallback).Methods(http.MethodGet)
	app.HandleFunc("/auth/federated/token", cfg.Auth.FederatedToken).Methods(http.MethodPost)

	app.HandleFunc("/api/session", cfg.API.Session).Methods(http.MethodGet)
	app.HandleFunc("/api/notifications", cfg.API.Notifications).Methods(http.MethodGet)
	if cfg.Events != nil {
		app.HandleFunc("/api/events", cfg.Events.HandleSSE).Methods(http.MethodGet)
	}
	app.PathPrefix("/api/").HandlerFunc(cfg.API.Proxy)

	for _, rule := range routes {
		app.Handle(rule.Pattern, cfg.Gate.Protect(rule)(cfg.Views.Render(rule))).Methods(http.MethodGet, http.MethodHead)
	}

	var h http.Handler = r
	if len(cfg.CORSAllowedOrigins) > 0 {
		h = middleware.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials)(h)
	}
	return middleware.CorrelationIDMiddleware(middleware.ClientIP(cfg.TrustedProxies)(h))
}
