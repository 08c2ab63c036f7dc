// Package directory keeps a cached list of rooms with their occupancy and picks the
// room a client joins.
package directory

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
)

const DefaultInterval = 10 * time.Second

// Directory caches the room listing. A failed refresh keeps the previous snapshot.
type Directory struct {
	lister   Lister
	interval time.Duration
	log      *slog.Logger

	mu       sync.RWMutex
	snapshot []domain.Room
	loaded   bool
	nextSub  uint64
	subs     map[uint64]func([]domain.Room)
}

func New(lister Lister, interval time.Duration) *Directory {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Directory{
		lister:   lister,
		interval: interval,
		log:      slog.With("component", "directory"),
		subs:     make(map[uint64]func([]domain.Room)),
	}
}

// Refresh fetches the listing now and notifies subscribers on success.
func (d *Directory) Refresh(ctx context.Context) error {
	rooms, err := d.lister.ListRooms(ctx)
	if err != nil {
		d.log.Warn("refresh rooms failed", "err", err)
		return err
	}

	d.mu.Lock()
	d.snapshot = slices.Clone(rooms)
	d.loaded = true
	subs := make([]func([]domain.Room), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.mu.Unlock()

	for _, fn := range subs {
		fn(slices.Clone(rooms))
	}
	return nil
}

// Snapshot returns the cached listing in directory order.
func (d *Directory) Snapshot() []domain.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.snapshot)
}

func (d *Directory) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// Run refreshes immediately and then on every interval until ctx is done.
func (d *Directory) Run(ctx context.Context) error {
	_ = d.Refresh(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = d.Refresh(ctx)
		}
	}
}

func (d *Directory) Subscribe(fn func([]domain.Room)) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextSub++
	id := d.nextSub
	d.subs[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subs, id)
	}
}

// Resolve loads the directory on first use and selects a room. ok=false means every
// room is full; err is returned only when no listing could ever be loaded.
func (d *Directory) Resolve(ctx context.Context, requested string, capacity int) (roomID string, ok bool, err error) {
	if !d.Loaded() {
		if rerr := d.Refresh(ctx); rerr != nil {
			return "", false, errors.Join(errors.New("room directory unavailable"), rerr)
		}
	}
	roomID, ok = Select(requested, d.Snapshot(), capacity)
	return roomID, ok, nil
}
