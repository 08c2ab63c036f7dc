package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
)

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

// List returns every room in id order; the directory relies on that order.
func (r *RoomRepository) List(ctx context.Context) ([]domain.Room, error) {
	rows, err := r.db.Query(ctx, `SELECT id, room_id, users_count FROM rooms ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[domain.Room])
}

func (r *RoomRepository) Get(ctx context.Context, roomID string) (*domain.Room, error) {
	var rm domain.Room
	err := r.db.QueryRow(ctx, `SELECT id, room_id, users_count FROM rooms WHERE room_id=$1`, roomID).
		Scan(&rm.ID, &rm.RoomID, &rm.UsersCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return &rm, nil
}

// Ensure inserts the room if missing and returns the stored row.
func (r *RoomRepository) Ensure(ctx context.Context, roomID string) (*domain.Room, error) {
	query := `
		INSERT INTO rooms (room_id) VALUES ($1)
		ON CONFLICT (room_id) DO UPDATE SET room_id = EXCLUDED.room_id
		RETURNING id, room_id, users_count`
	var rm domain.Room
	if err := r.db.QueryRow(ctx, query, roomID).Scan(&rm.ID, &rm.RoomID, &rm.UsersCount); err != nil {
		return nil, err
	}
	return &rm, nil
}

// UpdateCounts writes live occupancy in one batch; rooms missing from counts get 0.
func (r *RoomRepository) UpdateCounts(ctx context.Context, counts map[string]int) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE rooms SET users_count = 0 WHERE users_count <> 0`); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for roomID, n := range counts {
		batch.Queue(`UPDATE rooms SET users_count = $2 WHERE room_id = $1`, roomID, n)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
