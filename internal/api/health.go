package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jwm4/ambient-runner/internal/store"
)

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// RegisterHealth registers the health check routes.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyz)
}

func (h *HealthHandler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReadyz verifies the database is reachable before reporting ready.
func (h *HealthHandler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			JSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
