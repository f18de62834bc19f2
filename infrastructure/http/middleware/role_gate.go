package middleware

import (
	"context"
	"net/http"

	"github.com/securemedai/portal/application/port/inbound"
	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/application/usecase/gate"
	"github.com/securemedai/portal/domain/entity"
	"github.com/securemedai/portal/infrastructure/http/response"
	"github.com/securemedai/portal/infrastructure/service/logger"
)

type identityKey struct{}

// IdentityFromContext returns the identity resolved by RoleGate.
func IdentityFromContext(ctx context.Context) (entity.IdentityState, bool) {
	state, ok := ctx.Value(identityKey{}).(entity.IdentityState)
	return state, ok
}

// LoadingView is the placeholder served while a session's identity resolves.
type LoadingView struct {
	View string `json:"view"`
}

type RoleGate struct {
	resolver inbound.IdentityResolver
	logger   logger.Logger
}

func NewRoleGate(resolver inbound.IdentityResolver, logger logger.Logger) *RoleGate {
	return &RoleGate{resolver: resolver, logger: logger}
}

// Protect gates a view by rule. A loading identity gets 202 with a retry
// hint, a refused one a 303 to the decided path. Public views render
// without resolving the session.
func (g *RoleGate) Protect(rule entity.RouteRule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if rule.Access == entity.AccessPublic {
				next.ServeHTTP(w, r)
				return
			}
			sessionID, _ := outbound.SessionIDFromContext(ctx)
			identity := g.resolver.Acquire(ctx, sessionID)

			decision := gate.ForRule(identity, rule)
			switch decision.Kind {
			case gate.Placeholder:
				w.Header().Set("Retry-After", "1")
				response.Success(w, http.StatusAccepted, "loading", LoadingView{View: "loading"})
			case gate.Redirect:
				g.logger.Debug(ctx, "View gated", map[string]interface{}{
					"view":       rule.View,
					"role":       identity.Role,
					"redirect":   decision.Path,
					"session_id": outbound.ShortID(sessionID),
				})
				http.Redirect(w, r, decision.Path, http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, identityKey{}, identity)))
			}
		})
	}
}
