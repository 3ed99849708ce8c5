package handlers

import (
	"net/http"

	"chat-relay/internal/auth"
	"chat-relay/internal/config"
	"chat-relay/internal/relay"
	ws "chat-relay/internal/websocket"
	"chat-relay/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	dispatcher  *ws.Dispatcher
	cfg         config.WebSocketConfig
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, dispatcher *ws.Dispatcher, cfg config.WebSocketConfig) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		dispatcher:  dispatcher,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.AllowedOrigins),
		},
	}
}

// originChecker allows every origin when the list is empty.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	verifiedID, err := h.authService.VerifiedIdentityID(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	// Upgrade connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	session := relay.NewSession(h.cfg.SendBuffer, verifiedID)
	logger.Debug("Session %s connected from %s", session.ID(), r.RemoteAddr)

	ws.NewClient(conn, session, h.dispatcher, h.cfg.MaxMessageSize).Serve()

	logger.Debug("Session %s disconnected", session.ID())
}
