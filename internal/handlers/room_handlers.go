package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"chat-relay/internal/database"
	"chat-relay/internal/models"
	"chat-relay/internal/services"
	"chat-relay/pkg/logger"
)

type RoomHandlers struct {
	roomService *services.RoomService
}

func NewRoomHandlers(roomService *services.RoomService) *RoomHandlers {
	return &RoomHandlers{roomService: roomService}
}

func (h *RoomHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	room, err := h.roomService.CreateRoom(r.Context(), &req)
	switch {
	case errors.Is(err, services.ErrInvalidRoomName):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, database.ErrRoomExists):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		logger.Error("Create room error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

// GetRoomInfo answers 204 for an unknown room, as clients probe with it
// before joining.
func (h *RoomHandlers) GetRoomInfo(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomService.GetRoom(r.Context(), roomIDFromPath(r))
	if errors.Is(err, database.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		logger.Error("Get room error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandlers) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.roomService.GetMessages(r.Context(), roomIDFromPath(r))
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error("Get messages error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

func (h *RoomHandlers) RegisterIdentity(w http.ResponseWriter, r *http.Request) {
	var identity models.Identity
	if err := json.NewDecoder(r.Body).Decode(&identity); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	stored, err := h.roomService.RegisterIdentity(r.Context(), identity)
	if errors.Is(err, services.ErrInvalidIdentity) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		logger.Error("Register identity error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": stored})
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

// roomIDFromPath extracts {id} from /rooms/{id}/...
func roomIDFromPath(r *http.Request) string {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}
