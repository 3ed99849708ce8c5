package handlers

import (
	"net/http"
	"strings"
)

// NewRouter wires the HTTP surface: room REST endpoints, identity upsert,
// health and the websocket endpoint.
func NewRouter(roomHandlers *RoomHandlers, wsHandlers *WebSocketHandlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", Health)
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)

	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		roomHandlers.RegisterIdentity(w, r)
	})

	mux.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		roomHandlers.CreateRoom(w, r)
	})

	// Room sub-routes
	mux.HandleFunc("/rooms/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[1] == "" || r.Method != http.MethodGet {
			http.Error(w, "endpoint not found", http.StatusNotFound)
			return
		}

		switch parts[2] {
		case "info":
			roomHandlers.GetRoomInfo(w, r)
		case "messages":
			roomHandlers.GetRoomMessages(w, r)
		default:
			http.Error(w, "endpoint not found", http.StatusNotFound)
		}
	})

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
