package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pbarbosa/zapbridge/internal/store"
)

// HealthHandler reports process and storage readiness.
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// RegisterRoutes registers readiness routes on the router. Liveness is
// served by the router's heartbeat middleware.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health/ready", h.handleReady)
}

func (h *HealthHandler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"store":  err.Error(),
		})
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
