package replica

import (
	"cmp"
	"slices"
	"sync"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
)

// Peer: присутствие одного соединения комнаты.
type Peer struct {
	ConnectionID string          `json:"connectionId" cbor:"connectionId"`
	UserID       string          `json:"userId" cbor:"userId"`
	Presence     domain.Presence `json:"presence" cbor:"presence"`
}

type peerEntry struct {
	peer Peer
	seq  uint64
}

// PresenceTable keeps the latest presence per connection, listed in join order.
type PresenceTable struct {
	mu    sync.RWMutex
	seq   uint64
	peers map[string]*peerEntry
}

func NewPresenceTable() *PresenceTable {
	return &PresenceTable{peers: make(map[string]*peerEntry)}
}

// Join registers a connection; an already known connection keeps its position.
func (t *PresenceTable) Join(connID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.upsertLocked(connID, userID, nil)
}

// Set replaces the presence of a connection, registering it if unknown.
func (t *PresenceTable) Set(connID, userID string, p domain.Presence) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.upsertLocked(connID, userID, &p)
}

func (t *PresenceTable) upsertLocked(connID, userID string, p *domain.Presence) {
	e, ok := t.peers[connID]
	if !ok {
		t.seq++
		e = &peerEntry{peer: Peer{ConnectionID: connID}, seq: t.seq}
		t.peers[connID] = e
	}
	if userID != "" {
		e.peer.UserID = userID
	}
	if p != nil {
		e.peer.Presence = p.Clone()
	}
}

// Leave removes a connection. Returns false if it was not present.
func (t *PresenceTable) Leave(connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.peers[connID]; !ok {
		return false
	}
	delete(t.peers, connID)
	return true
}

func (t *PresenceTable) Get(connID string) (Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.peers[connID]
	if !ok {
		return Peer{}, false
	}
	p := e.peer
	p.Presence = p.Presence.Clone()
	return p, true
}

// List returns peers in join order.
func (t *PresenceTable) List() []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]*peerEntry, 0, len(t.peers))
	for _, e := range t.peers {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *peerEntry) int { return cmp.Compare(a.seq, b.seq) })

	out := make([]Peer, 0, len(entries))
	for _, e := range entries {
		p := e.peer
		p.Presence = p.Presence.Clone()
		out = append(out, p)
	}
	return out
}

func (t *PresenceTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// Reset drops every peer, e.g. when the link leaves the open state.
func (t *PresenceTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.peers)
}
