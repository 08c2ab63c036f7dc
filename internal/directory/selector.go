package directory

import (
	"github.com/samber/lo"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
)

// Select picks the room a client should join. An explicitly requested room that is
// in the snapshot always wins, even when full; otherwise the first room below
// capacity in snapshot order. ok is false when every room is full.
func Select(requested string, snapshot []domain.Room, capacity int) (roomID string, ok bool) {
	if requested != "" && lo.ContainsBy(snapshot, func(r domain.Room) bool { return r.RoomID == requested }) {
		return requested, true
	}
	room, found := lo.Find(snapshot, func(r domain.Room) bool { return r.UsersCount < capacity })
	if !found {
		return "", false
	}
	return room.RoomID, true
}
