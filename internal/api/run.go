package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jwm4/ambient-runner/internal/adapter"
	"github.com/jwm4/ambient-runner/internal/agui"
	"github.com/jwm4/ambient-runner/internal/runner"
)

const defaultRunListLimit = 50

// RegisterRoutes registers the AG-UI protocol routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/agui/run", h.handleRun)
	r.Post("/agui/interrupt", h.handleInterrupt)
	r.Get("/agui/capabilities", h.handleCapabilities)
	r.Get("/agui/threads/{threadID}", h.handleGetThread)
	r.Delete("/agui/threads/{threadID}", h.handleDestroyThread)
}

// handleRun executes one run and streams its events as SSE frames.
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var input agui.RunAgentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		Error(w, http.StatusBadRequest, "invalid run input: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	for ev, err := range h.svc.Run(r.Context(), input) {
		if err != nil {
			slog.Error("run stream failed", "error", err)
			return
		}
		frame, err := agui.EncodeSSE(ev)
		if err != nil {
			slog.Warn("failed to encode event", "type", ev.Type(), "error", err)
			continue
		}
		if _, err := w.Write(frame); err != nil {
			slog.Debug("client dropped run stream", "error", err)
			return
		}
		flusher.Flush()
		if h.hub != nil {
			h.hub.Publish(input.ThreadID, ev)
		}
	}
}

type interruptRequest struct {
	ThreadID string `json:"threadId"`
}

func (h *Handler) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	var req interruptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ThreadID == "" {
		Error(w, http.StatusBadRequest, "threadId is required")
		return
	}
	if err := h.svc.Interrupt(r.Context(), req.ThreadID); err != nil {
		if errors.Is(err, runner.ErrNoActiveSession) {
			Error(w, http.StatusNotFound, "no active session for thread")
			return
		}
		slog.Error("interrupt failed", "thread_id", req.ThreadID, "error", err)
		Error(w, http.StatusInternalServerError, "interrupt failed")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "interrupted", "threadId": req.ThreadID})
}

func (h *Handler) handleGetThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	resp := map[string]any{
		"threadId":  threadID,
		"sessionId": h.svc.SessionID(r.Context(), threadID),
	}
	if h.repo != nil {
		limit := defaultRunListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		runs, err := h.repo.ListRuns(r.Context(), threadID, limit)
		if err != nil {
			slog.Warn("run listing failed", "thread_id", threadID, "error", err)
		} else {
			items := make([]map[string]any, 0, len(runs))
			for _, run := range runs {
				items = append(items, map[string]any{
					"runId":       run.RunID,
					"parentRunId": run.ParentRunID,
					"status":      run.Status,
					"error":       run.Error,
					"createdAt":   run.CreatedAt,
				})
			}
			resp["runs"] = items
		}
	}
	JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDestroyThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	h.svc.DestroyThread(r.Context(), threadID)
	JSON(w, http.StatusOK, map[string]string{"status": "destroyed", "threadId": threadID})
}

// handleCapabilities describes the protocol surface for clients.
func (h *Handler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"events": []string{
			"RUN_STARTED", "RUN_FINISHED", "RUN_ERROR",
			"TEXT_MESSAGE_START", "TEXT_MESSAGE_CONTENT", "TEXT_MESSAGE_END",
			"TOOL_CALL_START", "TOOL_CALL_ARGS", "TOOL_CALL_END", "TOOL_CALL_RESULT",
			"THINKING_START", "THINKING_END",
			"THINKING_TEXT_MESSAGE_START", "THINKING_TEXT_MESSAGE_CONTENT", "THINKING_TEXT_MESSAGE_END",
			"STATE_SNAPSHOT", "MESSAGES_SNAPSHOT",
		},
		"stateTool":      adapter.StateToolFullName,
		"forwardedProps": []string{"resume", "model", "max_turns", "max_thinking_tokens"},
	})
}
