// Package protocol is the relay wire format: one envelope type for every frame
// exchanged between a client link and the relay hub.
package protocol

import (
	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	"github.com/cwrk-planet/canvas-rooms/internal/replica"
)

// Типы кадров
const (
	TypeWelcome        = "welcome"         // relay -> client: свой id, пиры, снапшот артефактов
	TypePeerJoined     = "peer_joined"     // relay -> client
	TypePeerLeft       = "peer_left"       // relay -> client
	TypePresence       = "presence"        // оба направления
	TypeArtifactInsert = "artifact_insert" // оба направления
	TypeArtifactRemove = "artifact_remove" // оба направления
	TypeBroadcast      = "broadcast"       // оба направления, без хранения
	TypeError          = "error"           // relay -> client
)

type Message struct {
	Type string `json:"type" cbor:"type"`

	// From: connection id отправителя; проставляет релей.
	From         string `json:"from,omitempty" cbor:"from,omitempty"`
	ConnectionID string `json:"connectionId,omitempty" cbor:"connectionId,omitempty"`
	UserID       string `json:"userId,omitempty" cbor:"userId,omitempty"`
	Room         string `json:"room,omitempty" cbor:"room,omitempty"`

	Presence *domain.Presence `json:"presence,omitempty" cbor:"presence,omitempty"`
	Op       *replica.Op      `json:"op,omitempty" cbor:"op,omitempty"`
	Ops      []replica.Op     `json:"ops,omitempty" cbor:"ops,omitempty"`
	Peers    []replica.Peer   `json:"peers,omitempty" cbor:"peers,omitempty"`
	Event    any              `json:"event,omitempty" cbor:"event,omitempty"`
	Error    string           `json:"error,omitempty" cbor:"error,omitempty"`
}

// ArtifactOp builds the frame carrying a replica operation.
func ArtifactOp(op replica.Op) Message {
	t := TypeArtifactInsert
	if op.Kind == replica.OpRemove {
		t = TypeArtifactRemove
	}
	return Message{Type: t, Op: &op}
}
