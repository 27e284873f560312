package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-server/internal/auth"
	ws "chat-server/internal/websocket"
	"chat-server/pkg/logger"
)

type WebSocketHandlers struct {
	authService *auth.Service
	hub         *ws.Hub
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, hub *ws.Hub) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		hub:         hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket authenticates the token, upgrades the connection and runs
// the socket pumps. The chat-level join happens later, when the client sends
// its user_join event over the socket.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	user, err := h.authService.GetUserFromToken(r.Context(), tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", logger.ErrorField(err))
		return
	}

	connID := uuid.NewString()
	logger.Debug("WebSocket connection established",
		logger.String("connection_id", connID),
		logger.String("user_id", user.ID),
	)

	client := ws.NewClient(connID, h.hub, conn)
	go client.Start()
}
