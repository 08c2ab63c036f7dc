package realtime

import "github.com/cwrk-planet/canvas-rooms/internal/protocol"

// BroadcastEvent: эфемерное событие комнаты, нигде не хранится.
type BroadcastEvent struct {
	ConnectionID string
	Payload      any
}

// BroadcastBus is an at-most-once event channel riding the connection.
type BroadcastBus struct {
	conn *Connection
	subs listeners[BroadcastEvent]
}

func newBroadcastBus(c *Connection) *BroadcastBus {
	return &BroadcastBus{conn: c}
}

// Publish sends payload to the peers attached right now. Returns false when the
// event was dropped; nothing is buffered or replayed.
func (b *BroadcastBus) Publish(payload any) bool {
	return b.conn.send(protocol.Message{Type: protocol.TypeBroadcast, Event: payload})
}

func (b *BroadcastBus) Subscribe(fn func(BroadcastEvent)) (unsubscribe func()) {
	return b.conn.scope.add(b.subs.add(fn))
}

func (b *BroadcastBus) deliver(ev BroadcastEvent) {
	b.subs.emit(ev)
}
