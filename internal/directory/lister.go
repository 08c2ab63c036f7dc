package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
)

// Lister is the room listing service.
type Lister interface {
	ListRooms(ctx context.Context) ([]domain.Room, error)
}

// HTTPLister reads GET {base}/rooms.
type HTTPLister struct {
	base string
	http *http.Client
}

func NewHTTPLister(base string, client *http.Client) *HTTPLister {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPLister{base: strings.TrimRight(base, "/"), http: client}
}

func (l *HTTPLister) ListRooms(ctx context.Context) ([]domain.Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.base+"/rooms", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list rooms: status %d", resp.StatusCode)
	}
	var rooms []domain.Room
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return rooms, nil
}
