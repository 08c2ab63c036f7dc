package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
)

type RoomCatalog interface {
	ListRooms(ctx context.Context) ([]domain.Room, error)
	RoomData(ctx context.Context, roomID string, start, end time.Time) ([]domain.Artifact, error)
}

type TokenIssuer interface {
	Issue(ctx context.Context, roomID, userID string) (string, error)
}

type Handler struct {
	roomSvc RoomCatalog
	authSvc TokenIssuer
}

func NewHandler(rooms RoomCatalog, auth TokenIssuer) *Handler {
	return &Handler{roomSvc: rooms, authSvc: auth}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.roomSvc.ListRooms(r.Context())
	if err != nil {
		slog.Error("handler.ListRooms:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

// POST /auth
func (h *Handler) Auth(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	token, err := h.authSvc.Issue(r.Context(), req.Room, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "room and user_id are required"})
		case errors.Is(err, domain.ErrRoomNotFound):
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "room not found"})
		default:
			slog.Error("handler.Auth:", slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, UserID: req.UserID, Room: req.Room})
}

// GET /room_data/{id}?start=&end= (RFC 3339, both optional)
func (h *Handler) RoomData(w http.ResponseWriter, r *http.Request) {
	start, err := parseTimeParam(r, "start")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "start must be RFC 3339"})
		return
	}
	end, err := parseTimeParam(r, "end")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "end must be RFC 3339"})
		return
	}

	arts, err := h.roomSvc.RoomData(r.Context(), chi.URLParam(r, "id"), start, end)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid time range"})
		case errors.Is(err, domain.ErrRoomNotFound):
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "room not found"})
		default:
			slog.Error("handler.RoomData:", slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		}
		return
	}
	if arts == nil {
		arts = []domain.Artifact{}
	}
	writeJSON(w, http.StatusOK, arts)
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
