package handler

import (
	"net/http"

	"github.com/securemedai/portal/domain/entity"
	"github.com/securemedai/portal/infrastructure/http/middleware"
	"github.com/securemedai/portal/infrastructure/http/response"
)

// View describes a portal page to the client that renders it.
type View struct {
	Name     string               `json:"view"`
	Path     string               `json:"path"`
	Access   string               `json:"access"`
	Roles    []entity.Role        `json:"roles,omitempty"`
	Identity entity.IdentityState `json:"identity"`
}

type ViewHandler struct{}

func NewViewHandler() *ViewHandler {
	return &ViewHandler{}
}

// Render serves the descriptor of an admitted view.
func (h *ViewHandler) Render(rule entity.RouteRule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := middleware.IdentityFromContext(r.Context())
		response.Success(w, http.StatusOK, "", View{
			Name:     rule.View,
			Path:     rule.Pattern,
			Access:   accessName(rule.Access),
			Roles:    rule.AllowedRoles,
			Identity: identity,
		})
	}
}

func accessName(a entity.RouteAccess) string {
	switch a {
	case entity.AccessPublicOnly:
		return "public_only"
	case entity.AccessProtected:
		return "protected"
	default:
		return "public"
	}
}
