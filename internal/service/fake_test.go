package service

import (
	"context"
	"sync"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	"github.com/cwrk-planet/canvas-rooms/internal/replica"
)

type memRepo struct {
	mu     sync.Mutex
	rooms  []domain.Room
	counts map[string]int
	err    error
}

func (r *memRepo) List(context.Context) ([]domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return append([]domain.Room(nil), r.rooms...), nil
}

func (r *memRepo) Get(_ context.Context, roomID string) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rm := range r.rooms {
		if rm.RoomID == roomID {
			out := rm
			return &out, nil
		}
	}
	return nil, domain.ErrRoomNotFound
}

func (r *memRepo) Ensure(_ context.Context, roomID string) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rm := range r.rooms {
		if rm.RoomID == roomID {
			out := rm
			return &out, nil
		}
	}
	rm := domain.Room{ID: int64(len(r.rooms) + 1), RoomID: roomID}
	r.rooms = append(r.rooms, rm)
	return &rm, nil
}

func (r *memRepo) UpdateCounts(_ context.Context, counts map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.counts = counts
	return nil
}

type staticOccupancy map[string]int

func (o staticOccupancy) Occupancy() map[string]int { return o }
func (staticOccupancy) Artifacts(string) []replica.Op { return nil }

// liveRoom отдаёт заранее заданную реплику одной комнаты.
type liveRoom struct {
	roomID string
	ops    []replica.Op
}

func (l liveRoom) Occupancy() map[string]int { return map[string]int{l.roomID: 1} }

func (l liveRoom) Artifacts(roomID string) []replica.Op {
	if roomID != l.roomID {
		return nil
	}
	return l.ops
}
