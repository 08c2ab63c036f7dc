// Package memrelay attaches connections to an in-process relay hub. Frames still go
// through the hub, so the replication path is the same as over the network.
package memrelay

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	"github.com/cwrk-planet/canvas-rooms/internal/protocol"
	"github.com/cwrk-planet/canvas-rooms/internal/realtime"
	"github.com/cwrk-planet/canvas-rooms/internal/relay"
)

type Relay struct {
	hub *relay.Hub

	mu    sync.Mutex
	rooms map[string]struct{} // пусто = любая комната
	links map[*link]struct{}
}

// New serves rooms from hub. With no rooms given every room id is accepted.
func New(hub *relay.Hub, rooms ...string) *Relay {
	r := &Relay{
		hub:   hub,
		rooms: make(map[string]struct{}, len(rooms)),
		links: make(map[*link]struct{}),
	}
	for _, id := range rooms {
		r.rooms[id] = struct{}{}
	}
	return r
}

func (r *Relay) Authenticate(ctx context.Context, room, userID string) (realtime.Session, error) {
	if err := ctx.Err(); err != nil {
		return realtime.Session{}, err
	}
	r.mu.Lock()
	_, known := r.rooms[room]
	open := len(r.rooms) == 0
	r.mu.Unlock()

	if !open && !known {
		return realtime.Session{}, fmt.Errorf("%w: %v %q", domain.ErrAuthRejected, domain.ErrRoomNotFound, room)
	}
	return realtime.Session{Room: room, UserID: userID, Token: uuid.NewString()}, nil
}

func (r *Relay) Dial(ctx context.Context, s realtime.Session) (realtime.Link, error) {
	peer := r.hub.Join(s.Room, s.UserID)

	var welcome protocol.Message
	select {
	case welcome = <-peer.Messages():
	case <-ctx.Done():
		r.hub.Leave(peer)
		return nil, ctx.Err()
	}
	if welcome.Type != protocol.TypeWelcome {
		r.hub.Leave(peer)
		return nil, fmt.Errorf("memrelay: expected welcome, got %q", welcome.Type)
	}

	l := &link{relay: r, peer: peer, welcome: welcome}
	r.mu.Lock()
	r.links[l] = struct{}{}
	r.mu.Unlock()
	return l, nil
}

// DropAll drops every live link as a transport failure would.
func (r *Relay) DropAll() {
	r.mu.Lock()
	links := make([]*link, 0, len(r.links))
	for l := range r.links {
		links = append(links, l)
	}
	r.mu.Unlock()

	for _, l := range links {
		_ = l.Close()
	}
}

type link struct {
	relay   *Relay
	peer    *relay.Peer
	welcome protocol.Message
}

func (l *link) Welcome() protocol.Message        { return l.welcome }
func (l *link) Inbound() <-chan protocol.Message { return l.peer.Messages() }
func (l *link) Done() <-chan struct{}            { return l.peer.Done() }

func (l *link) Send(msg protocol.Message) error {
	select {
	case <-l.peer.Done():
		return realtime.ErrTransportDropped
	default:
	}
	l.relay.hub.Handle(l.peer, msg)
	return nil
}

func (l *link) Close() error {
	l.relay.mu.Lock()
	delete(l.relay.links, l)
	l.relay.mu.Unlock()

	l.relay.hub.Leave(l.peer)
	return nil
}
