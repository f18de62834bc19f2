package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/securemedai/portal/application/port/inbound"
	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
	domainerr "github.com/securemedai/portal/domain/error"
	"github.com/securemedai/portal/infrastructure/http/response"
	"github.com/securemedai/portal/infrastructure/service/logger"
)

// Forwarder proxies a browser request to the hospital API.
type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request, path string) error
}

type APIHandler struct {
	gateway  Forwarder
	resolver inbound.IdentityResolver
	notifier outbound.Notifier
	logger   logger.Logger
}

func NewAPIHandler(gateway Forwarder, resolver inbound.IdentityResolver, notifier outbound.Notifier, logger logger.Logger) *APIHandler {
	return &APIHandler{
		gateway:  gateway,
		resolver: resolver,
		notifier: notifier,
		logger:   logger,
	}
}

// Proxy forwards /api/* to the hospital API under the same path. An ended
// session sends navigations to the login page and API clients a 401 that
// names it.
func (h *APIHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	err := h.gateway.Forward(w, r, r.URL.EscapedPath())
	switch {
	case err == nil:
	case errors.Is(err, domainerr.ErrSessionInvalid):
		if wantsHTML(r) {
			http.Redirect(w, r, entity.LoginPath, http.StatusSeeOther)
			return
		}
		response.SessionExpired(w, entity.LoginPath)
	default:
		response.FromError(w, err)
	}
}

// Session reports the resolved identity of the calling browser.
func (h *APIHandler) Session(w http.ResponseWriter, r *http.Request) {
	identity := h.resolver.Acquire(r.Context(), sessionID(r))
	if identity.Loading {
		w.Header().Set("Retry-After", "1")
		response.Success(w, http.StatusAccepted, "loading", identity)
		return
	}
	response.Success(w, http.StatusOK, "", identity)
}

// Notifications drains the session's pending toasts.
func (h *APIHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	notes, err := h.notifier.Drain(r.Context(), sessionID(r))
	if err != nil {
		h.logger.Error(r.Context(), "Failed to drain notifications", err, nil)
		response.FromError(w, domainerr.ErrInternal(err))
		return
	}
	if notes == nil {
		notes = []outbound.Notification{}
	}
	response.Success(w, http.StatusOK, "", notes)
}

func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}
