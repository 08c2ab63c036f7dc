package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	httpmw "github.com/cwrk-planet/canvas-rooms/internal/transport/http/middleware"
)

type stubRooms struct {
	rooms []domain.Room
	arts  []domain.Artifact
	err   error
	asked *[2]time.Time // последний запрошенный диапазон
}

func (s stubRooms) ListRooms(context.Context) ([]domain.Room, error) { return s.rooms, s.err }

func (s stubRooms) RoomData(_ context.Context, roomID string, start, end time.Time) ([]domain.Artifact, error) {
	if s.asked != nil {
		*s.asked = [2]time.Time{start, end}
	}
	switch {
	case roomID == "missing":
		return nil, domain.ErrRoomNotFound
	case !start.IsZero() && !end.IsZero() && end.Before(start):
		return nil, domain.ErrInvalidInput
	}
	return s.arts, s.err
}

type stubIssuer struct{}

func (stubIssuer) Issue(_ context.Context, roomID, userID string) (string, error) {
	switch {
	case roomID == "" || userID == "":
		return "", domain.ErrInvalidInput
	case roomID == "missing":
		return "", domain.ErrRoomNotFound
	case roomID == "broken":
		return "", errors.New("db down")
	}
	return "token-" + roomID + "-" + userID, nil
}

func newTestRouter(rooms stubRooms) http.Handler {
	ws := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }
	return NewRouter(NewHandler(rooms, stubIssuer{}), ws, RouterOptions{AllowedOrigins: []string{"http://localhost:5173"}})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListRooms(t *testing.T) {
	h := newTestRouter(stubRooms{rooms: []domain.Room{{ID: 1, RoomID: "sd-multiplayer-room-0", UsersCount: 19}}})

	rec := do(t, h, http.MethodGet, "/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":1,"room_id":"sd-multiplayer-room-0","users_count":19}]`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(httpmw.HeaderRequestID))

	rec = do(t, newTestRouter(stubRooms{}), http.MethodGet, "/rooms", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, newTestRouter(stubRooms{err: errors.New("boom")}), http.MethodGet, "/rooms", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuth(t *testing.T) {
	h := newTestRouter(stubRooms{})

	rec := do(t, h, http.MethodPost, "/auth", `{"room":"r0","user_id":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, AuthResponse{Token: "token-r0-u1", UserID: "u1", Room: "r0"}, resp)

	cases := map[string]int{
		`{"room":"missing","user_id":"u1"}`: http.StatusNotFound,
		`{"room":"","user_id":"u1"}`:        http.StatusBadRequest,
		`{"room":"broken","user_id":"u1"}`:  http.StatusInternalServerError,
		`not json`:                          http.StatusBadRequest,
	}
	for body, status := range cases {
		assert.Equal(t, status, do(t, h, http.MethodPost, "/auth", body).Code, body)
	}
}

func TestRouter_HealthWSAndCORS(t *testing.T) {
	h := newTestRouter(stubRooms{})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusTeapot, do(t, h, http.MethodGet, "/ws/rooms/r0", "").Code)

	req := httptest.NewRequest(http.MethodOptions, "/rooms", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoomData(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var asked [2]time.Time
	h := newTestRouter(stubRooms{
		arts:  []domain.Artifact{{ID: "a1", Prompt: "fox", ImageURL: "/img/a1.jpeg", Position: domain.GridCell{X: 96, Y: 96}, CreatedAt: at, Room: "r0"}},
		asked: &asked,
	})

	rec := do(t, h, http.MethodGet, "/room_data/r0?start=2024-05-01T00:00:00Z&end=2024-05-02T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"a1","prompt":"fox","imgURL":"/img/a1.jpeg","position":{"x":96,"y":96},"date":"2024-05-01T12:00:00Z","room":"r0"}]`, rec.Body.String())
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), asked[0])
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), asked[1])

	rec = do(t, h, http.MethodGet, "/room_data/r0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, asked[0].IsZero() && asked[1].IsZero())

	cases := map[string]int{
		"/room_data/missing":                                                http.StatusNotFound,
		"/room_data/r0?start=yesterday":                                     http.StatusBadRequest,
		"/room_data/r0?end=1714564800":                                      http.StatusBadRequest,
		"/room_data/r0?start=2024-05-02T00:00:00Z&end=2024-05-01T00:00:00Z": http.StatusBadRequest,
	}
	for path, status := range cases {
		assert.Equal(t, status, do(t, h, http.MethodGet, path, "").Code, path)
	}

	rec = do(t, newTestRouter(stubRooms{}), http.MethodGet, "/room_data/r0", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}
