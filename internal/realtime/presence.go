package realtime

import (
	"sync"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	"github.com/cwrk-planet/canvas-rooms/internal/protocol"
	"github.com/cwrk-planet/canvas-rooms/internal/replica"
)

type Peer = replica.Peer

// PresenceOption overwrites one field of the local presence.
type PresenceOption func(*domain.Presence)

func WithCursor(c *domain.GridCell) PresenceOption {
	return func(p *domain.Presence) { p.Cursor = copyCell(c) }
}

func WithFrame(f *domain.GridCell) PresenceOption {
	return func(p *domain.Presence) { p.Frame = copyCell(f) }
}

func WithStatus(s domain.Status) PresenceOption {
	return func(p *domain.Presence) { p.Status = s }
}

func WithPrompt(prompt string) PresenceOption {
	return func(p *domain.Presence) { p.CurrentPrompt = prompt }
}

func copyCell(c *domain.GridCell) *domain.GridCell {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

// PresenceChannel publishes the local presence and mirrors the presence of every
// other connection in the room.
type PresenceChannel struct {
	conn  *Connection
	peers *replica.PresenceTable
	subs  listeners[[]Peer]

	mu    sync.Mutex
	local domain.Presence
}

func newPresenceChannel(c *Connection) *PresenceChannel {
	return &PresenceChannel{
		conn:  c,
		peers: replica.NewPresenceTable(),
		local: domain.Presence{Status: domain.StatusReady},
	}
}

// SetPresence merges the options into the local record and publishes it.
// Fire-and-forget: while not open the update is only kept locally and goes out
// when the connection opens again.
func (p *PresenceChannel) SetPresence(opts ...PresenceOption) {
	p.mu.Lock()
	for _, opt := range opts {
		opt(&p.local)
	}
	cur := p.local.Clone()
	p.mu.Unlock()

	p.conn.send(protocol.Message{Type: protocol.TypePresence, Presence: &cur})
}

// Local returns the local presence record.
func (p *PresenceChannel) Local() domain.Presence {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local.Clone()
}

// Peers returns other connections of the room in join order.
func (p *PresenceChannel) Peers() []Peer { return p.peers.List() }

// Subscribe calls fn on the event loop with the full peer list after every change.
func (p *PresenceChannel) Subscribe(fn func([]Peer)) (unsubscribe func()) {
	return p.conn.scope.add(p.subs.add(fn))
}

// --- event loop side ---

func (p *PresenceChannel) attach(peers []Peer) {
	p.peers.Reset()
	for _, peer := range peers {
		if peer.ConnectionID == p.conn.ID() {
			continue
		}
		p.peers.Set(peer.ConnectionID, peer.UserID, peer.Presence)
	}
	p.notify()

	// состояние не переживает переподключение: публикуем заново
	p.mu.Lock()
	cur := p.local.Clone()
	p.mu.Unlock()
	p.conn.send(protocol.Message{Type: protocol.TypePresence, Presence: &cur})
}

func (p *PresenceChannel) detach() {
	if p.peers.Len() == 0 {
		return
	}
	p.peers.Reset()
	p.notify()
}

func (p *PresenceChannel) joined(connID, userID string) {
	p.peers.Join(connID, userID)
	p.notify()
}

func (p *PresenceChannel) left(connID string) {
	if p.peers.Leave(connID) {
		p.notify()
	}
}

func (p *PresenceChannel) update(connID, userID string, pr domain.Presence) {
	if connID == "" {
		return
	}
	p.peers.Set(connID, userID, pr)
	p.notify()
}

func (p *PresenceChannel) notify() {
	p.subs.emit(p.peers.List())
}
