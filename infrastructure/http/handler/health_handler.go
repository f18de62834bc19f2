package handler

import (
	"net/http"

	"github.com/securemedai/portal/infrastructure/http/response"
)

type HealthHandler struct {
	federatedEnabled bool
	sessionBackend   string
}

func NewHealthHandler(federatedEnabled bool, sessionBackend string) *HealthHandler {
	return &HealthHandler{federatedEnabled: federatedEnabled, sessionBackend: sessionBackend}
}

func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, http.StatusOK, "healthy", map[string]interface{}{
		"status":            "healthy",
		"federated_enabled": h.federatedEnabled,
		"session_backend":   h.sessionBackend,
	})
}
