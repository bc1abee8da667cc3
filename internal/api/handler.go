// Package api provides HTTP handlers for the AG-UI runner API.
package api

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"

	"github.com/jwm4/ambient-runner/internal/agui"
	"github.com/jwm4/ambient-runner/internal/store"
)

// RunService executes protocol runs. Satisfied by runner.Runner.
type RunService interface {
	Run(ctx context.Context, input agui.RunAgentInput) iter.Seq2[agui.Event, error]
	Interrupt(ctx context.Context, threadID string) error
	DestroyThread(ctx context.Context, threadID string)
	SessionID(ctx context.Context, threadID string) string
}

// Handler serves the AG-UI endpoints.
type Handler struct {
	svc  RunService
	repo store.Repository
	hub  *Hub
}

// NewHandler creates a new Handler. repo and hub may be nil.
func NewHandler(svc RunService, repo store.Repository, hub *Hub) *Handler {
	return &Handler{svc: svc, repo: repo, hub: hub}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
