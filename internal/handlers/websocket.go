package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aspira-app/aspira/api/internal/auth"
	"github.com/aspira-app/aspira/api/internal/events"
	"github.com/aspira-app/aspira/api/internal/logging"
	"github.com/aspira-app/aspira/api/internal/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin allow-list is handled by the CORS layer
	},
}

// WebSocketHandlers streams pending-action events to clients
type WebSocketHandlers struct {
	hub    *events.Hub
	logger *logging.Logger
}

// NewWebSocketHandlers creates new websocket handlers
func NewWebSocketHandlers(hub *events.Hub, logger *logging.Logger) *WebSocketHandlers {
	return &WebSocketHandlers{hub: hub, logger: logger}
}

// ActionsWebSocket pushes the authenticated user's action lifecycle
// events (created, confirmed, cancelled, expired, executed) as they
// happen, so the approval UI never has to poll.
func (h *WebSocketHandlers) ActionsWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", err, nil)
		return
	}
	defer conn.Close()

	metrics.WebsocketOpened()
	defer metrics.WebsocketClosed()

	eventCh, cancel := h.hub.Subscribe(userID)
	defer cancel()

	conn.WriteJSON(map[string]interface{}{
		"type": "connected",
	})

	// Drain client frames so close/pong frames are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, open := <-eventCh:
			if !open {
				return
			}
			if err := conn.WriteJSON(map[string]interface{}{
				"type":   string(event.Type),
				"action": event.Action,
			}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]interface{}{
				"type": "ping",
			}); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
