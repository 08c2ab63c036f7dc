package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	"github.com/cwrk-planet/canvas-rooms/internal/replica"
)

// RoomRepo: хранилище каталога комнат.
type RoomRepo interface {
	List(ctx context.Context) ([]domain.Room, error)
	Get(ctx context.Context, roomID string) (*domain.Room, error)
	Ensure(ctx context.Context, roomID string) (*domain.Room, error)
	UpdateCounts(ctx context.Context, counts map[string]int) error
}

// LiveRooms is the in-memory room state held by the relay hub.
type LiveRooms interface {
	Occupancy() map[string]int
	Artifacts(roomID string) []replica.Op
}

type RoomService struct {
	roomRepo RoomRepo
	live     LiveRooms
}

func NewRoomService(roomRepo RoomRepo, live LiveRooms) *RoomService {
	return &RoomService{roomRepo: roomRepo, live: live}
}

// ListRooms возвращает каталог с живыми счётчиками участников.
func (s *RoomService) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rooms, err := s.roomRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.List: %w", err)
	}
	if s.live == nil {
		return rooms, nil
	}
	live := s.live.Occupancy()
	for i := range rooms {
		rooms[i].UsersCount = live[rooms[i].RoomID]
	}
	return rooms, nil
}

// GetRoom возвращает комнату по room_id.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	if roomID == "" {
		return nil, domain.ErrInvalidInput
	}
	room, err := s.roomRepo.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if s.live != nil {
		room.UsersCount = s.live.Occupancy()[roomID]
	}
	return room, nil
}

// RoomData returns the artifacts placed in a live room, oldest first. Zero start or
// end leaves that side of the range open. Placements live only while the room
// has members.
func (s *RoomService) RoomData(ctx context.Context, roomID string, start, end time.Time) ([]domain.Artifact, error) {
	if roomID == "" || (!start.IsZero() && !end.IsZero() && end.Before(start)) {
		return nil, domain.ErrInvalidInput
	}
	if _, err := s.roomRepo.Get(ctx, roomID); err != nil {
		return nil, err
	}
	out := []domain.Artifact{}
	if s.live == nil {
		return out, nil
	}
	for _, op := range s.live.Artifacts(roomID) {
		if op.Kind != replica.OpInsert || op.Artifact == nil {
			continue
		}
		at := op.Artifact.CreatedAt
		if (!start.IsZero() && at.Before(start)) || (!end.IsZero() && at.After(end)) {
			continue
		}
		out = append(out, *op.Artifact)
	}
	slices.SortStableFunc(out, func(a, b domain.Artifact) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// Seed ensures rooms prefix0..prefix(n-1) exist.
func (s *RoomService) Seed(ctx context.Context, prefix string, n int) ([]domain.Room, error) {
	if prefix == "" || n <= 0 {
		return nil, domain.ErrInvalidInput
	}
	out := make([]domain.Room, 0, n)
	for i := 0; i < n; i++ {
		room, err := s.roomRepo.Ensure(ctx, prefix+strconv.Itoa(i))
		if err != nil {
			return out, fmt.Errorf("roomRepo.Ensure: %w", err)
		}
		out = append(out, *room)
	}
	return out, nil
}

// SyncCounts persists the live counts so the stored catalog does not go stale.
func (s *RoomService) SyncCounts(ctx context.Context) error {
	if err := s.roomRepo.UpdateCounts(ctx, s.live.Occupancy()); err != nil {
		return fmt.Errorf("roomRepo.UpdateCounts: %w", err)
	}
	return nil
}

// RunSync calls SyncCounts every interval until ctx is done.
func (s *RoomService) RunSync(ctx context.Context, every time.Duration) error {
	log := slog.With("component", "room.sync")
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.SyncCounts(ctx); err != nil {
				log.Warn("sync room counts failed", "err", err)
				continue
			}
			log.Debug("room counts synced")
		}
	}
}
