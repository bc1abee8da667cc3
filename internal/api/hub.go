package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/jwm4/ambient-runner/internal/agui"
)

const hubHeartbeat = 15 * time.Second

// Hub fans protocol events out to WebSocket observers. Subscribers follow
// one thread, or every thread when they subscribe with an empty id.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*websocket.Conn]struct{})}
}

func (h *Hub) subscribe(threadID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[threadID]; !ok {
		h.subs[threadID] = make(map[*websocket.Conn]struct{})
	}
	h.subs[threadID][conn] = struct{}{}
}

func (h *Hub) unsubscribe(threadID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.subs[threadID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subs, threadID)
		}
	}
}

// Publish delivers an event to the thread's observers and to wildcard
// observers. Writes are best effort; a stalled observer never blocks the
// run stream past the write timeout.
func (h *Hub) Publish(threadID string, ev agui.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("failed to marshal event for observers", "type", ev.Type(), "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subs[threadID])+len(h.subs[""]))
	for conn := range h.subs[threadID] {
		conns = append(conns, conn)
	}
	if threadID != "" {
		for conn := range h.subs[""] {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			slog.Debug("observer write failed", "error", err)
		}
		cancel()
	}
}

// EventsHandler upgrades observers to WebSocket and keeps them attached to
// the hub until they disconnect.
type EventsHandler struct {
	hub           *Hub
	allowedOrigin string
	isDev         bool
}

// NewEventsHandler creates the live tail endpoint.
func NewEventsHandler(hub *Hub, allowedOrigin string, isDev bool) *EventsHandler {
	return &EventsHandler{hub: hub, allowedOrigin: allowedOrigin, isDev: isDev}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept observer WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "observer detached"); closeErr != nil {
			slog.Debug("failed to close observer websocket", "error", closeErr)
		}
	}()

	threadID := r.URL.Query().Get("threadId")
	slog.Info("observer attached", "thread_id", threadID, "ip", r.RemoteAddr)

	h.hub.subscribe(threadID, ws)
	defer h.hub.unsubscribe(threadID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Heartbeat keeps intermediaries from timing out an idle observer.
	go func() {
		ticker := time.NewTicker(hubHeartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ws.Ping(ctx); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Observers are read-only; the read loop only detects disconnects.
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("observer closed connection", "thread_id", threadID)
			}
			return
		}
	}
}

func (h *EventsHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("observer origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
