// Package relay performs room-scoped fan-out. The hub owns the authoritative room
// replica while a room has members and knows nothing about the transport.
package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	"github.com/cwrk-planet/canvas-rooms/internal/protocol"
	"github.com/cwrk-planet/canvas-rooms/internal/replica"
)

type Options struct {
	// SendQueue: размер исходящей очереди пира; переполнение = отключение.
	SendQueue     int
	PresenceRate  rate.Limit
	PresenceBurst int
}

func (o Options) withDefaults() Options {
	if o.SendQueue <= 0 {
		o.SendQueue = 256
	}
	if o.PresenceRate <= 0 {
		o.PresenceRate = rate.Inf
	}
	if o.PresenceBurst <= 0 {
		o.PresenceBurst = 1
	}
	return o
}

type room struct {
	id        string
	peers     map[string]*Peer
	presence  *replica.PresenceTable
	artifacts *replica.ArtifactSet
}

type Hub struct {
	opts Options
	log  *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*room // roomID -> room
}

func NewHub(opts Options) *Hub {
	return &Hub{
		opts:  opts.withDefaults(),
		log:   slog.With("component", "relay.hub"),
		rooms: make(map[string]*room),
	}
}

// Join registers a peer, queues its welcome frame and notifies the room.
func (h *Hub) Join(roomID, userID string) *Peer {
	p := newPeer(uuid.NewString(), userID, roomID, h.opts.SendQueue,
		rate.NewLimiter(h.opts.PresenceRate, h.opts.PresenceBurst))

	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{
			id:        roomID,
			peers:     make(map[string]*Peer),
			presence:  replica.NewPresenceTable(),
			artifacts: replica.NewArtifactSet("relay"),
		}
		h.rooms[roomID] = r
	}

	welcome := protocol.Message{
		Type:         protocol.TypeWelcome,
		ConnectionID: p.id,
		UserID:       userID,
		Room:         roomID,
		Peers:        r.presence.List(),
		Ops:          r.artifacts.Snapshot(),
	}
	r.peers[p.id] = p
	r.presence.Join(p.id, userID)
	p.enqueue(welcome)

	slow := h.fanoutLocked(r, p.id, protocol.Message{
		Type:         protocol.TypePeerJoined,
		ConnectionID: p.id,
		UserID:       userID,
	})
	h.mu.Unlock()

	h.log.Info("peer joined", "room", roomID, "conn", p.id, "user", userID)
	h.evict(slow)
	return p
}

// Leave removes the peer; the room is forgotten once empty.
func (h *Hub) Leave(p *Peer) {
	h.mu.Lock()
	r, ok := h.rooms[p.roomID]
	if !ok {
		h.mu.Unlock()
		p.close()
		return
	}
	if _, member := r.peers[p.id]; !member {
		h.mu.Unlock()
		p.close()
		return
	}

	delete(r.peers, p.id)
	r.presence.Leave(p.id)
	var slow []*Peer
	if len(r.peers) == 0 {
		delete(h.rooms, p.roomID)
	} else {
		slow = h.fanoutLocked(r, p.id, protocol.Message{
			Type:         protocol.TypePeerLeft,
			ConnectionID: p.id,
			UserID:       p.userID,
		})
	}
	h.mu.Unlock()

	p.close()
	h.log.Info("peer left", "room", p.roomID, "conn", p.id)
	h.evict(slow)
}

// Handle applies an inbound frame from p and fans it out to the rest of the room.
func (h *Hub) Handle(p *Peer, msg protocol.Message) {
	h.mu.RLock()
	r, ok := h.rooms[p.roomID]
	if !ok || r.peers[p.id] != p {
		h.mu.RUnlock()
		return
	}

	var slow []*Peer
	switch msg.Type {
	case protocol.TypePresence:
		if msg.Presence == nil {
			break
		}
		slow = h.setPresenceLocked(r, p, msg.Presence.Clone())

	case protocol.TypeArtifactInsert, protocol.TypeArtifactRemove:
		if msg.Op == nil {
			break
		}
		op := *msg.Op
		if op.Artifact != nil {
			a := *op.Artifact
			a.Room = r.id
			op.Artifact = &a
		}
		if !r.artifacts.Apply(op) {
			break
		}
		out := protocol.ArtifactOp(op)
		out.From = p.id
		slow = h.fanoutLocked(r, p.id, out)

	case protocol.TypeBroadcast:
		slow = h.fanoutLocked(r, p.id, protocol.Message{
			Type:  protocol.TypeBroadcast,
			From:  p.id,
			Event: msg.Event,
		})

	default:
		p.enqueue(protocol.Message{Type: protocol.TypeError, Error: "unsupported message type " + msg.Type})
	}
	h.mu.RUnlock()

	h.evict(slow)
}

// setPresenceLocked stores the record and fans it out. Over the rate limit the
// fan-out is deferred: one flush carries the latest record once a token is free.
func (h *Hub) setPresenceLocked(r *room, p *Peer, pr domain.Presence) []*Peer {
	p.presenceMu.Lock()
	defer p.presenceMu.Unlock()

	r.presence.Set(p.id, p.userID, pr)
	if p.presenceFlush != nil {
		return nil
	}
	if !p.limiter.Allow() {
		p.presenceFlush = time.AfterFunc(p.limiter.Reserve().Delay(), func() { h.flushPresence(p) })
		return nil
	}
	return h.fanoutLocked(r, p.id, presenceMessage(p, pr))
}

func (h *Hub) flushPresence(p *Peer) {
	h.mu.RLock()
	r, ok := h.rooms[p.roomID]
	if !ok || r.peers[p.id] != p {
		h.mu.RUnlock()
		return
	}

	var slow []*Peer
	p.presenceMu.Lock()
	p.presenceFlush = nil
	if latest, ok := r.presence.Get(p.id); ok {
		slow = h.fanoutLocked(r, p.id, presenceMessage(p, latest.Presence))
	}
	p.presenceMu.Unlock()
	h.mu.RUnlock()

	h.evict(slow)
}

func presenceMessage(p *Peer, pr domain.Presence) protocol.Message {
	return protocol.Message{
		Type:     protocol.TypePresence,
		From:     p.id,
		UserID:   p.userID,
		Presence: &pr,
	}
}

// fanoutLocked sends msg to every peer of r except skip and returns the peers
// whose queues overflowed.
func (h *Hub) fanoutLocked(r *room, skip string, msg protocol.Message) []*Peer {
	var slow []*Peer
	for id, peer := range r.peers {
		if id == skip {
			continue
		}
		if !peer.enqueue(msg) {
			slow = append(slow, peer)
		}
	}
	return slow
}

func (h *Hub) evict(slow []*Peer) {
	for _, p := range slow {
		h.log.Warn("peer send queue full, evicting", "room", p.roomID, "conn", p.id)
		h.Leave(p)
	}
}

// Occupancy returns live connection counts per room.
func (h *Hub) Occupancy() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return lo.MapValues(h.rooms, func(r *room, _ string) int { return len(r.peers) })
}

func (h *Hub) Count(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[roomID]; ok {
		return len(r.peers)
	}
	return 0
}

// Artifacts returns the room replica as seen by the relay.
func (h *Hub) Artifacts(roomID string) []replica.Op {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[roomID]; ok {
		return r.artifacts.Snapshot()
	}
	return nil
}
