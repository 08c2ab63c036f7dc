package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	"github.com/cwrk-planet/canvas-rooms/internal/protocol"
	"github.com/cwrk-planet/canvas-rooms/internal/replica"
	"github.com/cwrk-planet/canvas-rooms/internal/upload"
)

// Uploader is the external image upload collaborator.
type Uploader interface {
	Upload(ctx context.Context, image []byte, prompt, key string) (upload.Result, error)
}

// ArtifactStore is the room's shared artifact list as seen by this connection.
// Local writes apply immediately; while the connection is not open they are
// queued and sent once it opens again.
type ArtifactStore struct {
	conn *Connection
	set  *replica.ArtifactSet
	subs listeners[[]domain.Artifact]

	mu      sync.Mutex
	pending []replica.Op
}

func newArtifactStore(c *Connection, origin string) *ArtifactStore {
	return &ArtifactStore{
		conn: c,
		set:  replica.NewArtifactSet(origin),
	}
}

// Insert adds an artifact. A duplicate id is ignored and reported as false.
func (s *ArtifactStore) Insert(a domain.Artifact) bool {
	if a.Room == "" {
		a.Room = s.conn.Room()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	op, ok := s.set.Insert(a)
	if ok {
		s.sendLocked(op)
	}
	s.mu.Unlock()

	if ok {
		s.conn.post(s.notify)
	}
	return ok
}

// Remove deletes an artifact by id; unknown ids are a no-op.
func (s *ArtifactStore) Remove(id string) bool {
	s.mu.Lock()
	op, ok := s.set.Remove(id)
	if ok {
		s.sendLocked(op)
	}
	s.mu.Unlock()

	if ok {
		s.conn.post(s.notify)
	}
	return ok
}

func (s *ArtifactStore) sendLocked(op replica.Op) {
	if len(s.pending) > 0 || !s.conn.send(protocol.ArtifactOp(op)) {
		s.pending = append(s.pending, op)
	}
}

// List returns the artifacts in local insertion order.
func (s *ArtifactStore) List() []domain.Artifact { return s.set.List() }

// Pending reports how many local operations wait for the connection to open.
func (s *ArtifactStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Subscribe calls fn on the event loop with the full list after every change.
func (s *ArtifactStore) Subscribe(fn func([]domain.Artifact)) (unsubscribe func()) {
	return s.conn.scope.add(s.subs.add(fn))
}

// PlaceRequest: результат генерации, который нужно поставить на холст.
type PlaceRequest struct {
	Prompt string
	Image  []byte
	X, Y   float64
}

// Place uploads the image and inserts an artifact at the snapped grid cell.
func (s *ArtifactStore) Place(ctx context.Context, up Uploader, req PlaceRequest) (domain.Artifact, error) {
	id := uuid.NewString()
	res, err := up.Upload(ctx, req.Image, req.Prompt, id)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("place artifact: %w", err)
	}

	a := domain.Artifact{
		ID:        id,
		Prompt:    req.Prompt,
		ImageURL:  res.URL,
		Position:  s.conn.opts.Canvas.Cell(req.X, req.Y),
		CreatedAt: time.Now().UTC(),
		Room:      s.conn.Room(),
	}
	s.Insert(a)
	return a, nil
}

// --- event loop side ---

func (s *ArtifactStore) attach(snapshot []replica.Op) {
	changed := s.set.Merge(snapshot)

	s.mu.Lock()
	// всё, чего нет в снимке релея (включая очередь офлайн-записей), отправляем заново;
	// метки делают повтор идемпотентным
	s.pending = s.set.Missing(snapshot)
	sent := 0
	for _, op := range s.pending {
		if !s.conn.send(protocol.ArtifactOp(op)) {
			break
		}
		sent++
	}
	s.pending = s.pending[sent:]
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

func (s *ArtifactStore) apply(op replica.Op) {
	if s.set.Apply(op) {
		s.notify()
	}
}

func (s *ArtifactStore) notify() {
	s.subs.emit(s.set.List())
}
