// Package realtime is the client side of a room: a Connection driving the state
// machine over a swappable Relay, and the presence, artifact and broadcast
// channels attached to it.
package realtime

import (
	"context"

	"github.com/cwrk-planet/canvas-rooms/internal/protocol"
)

// Session is what authentication yields and dialing consumes.
type Session struct {
	Room   string
	UserID string
	Token  string
}

func (s Session) Valid() bool { return s.Room != "" && s.Token != "" }

// Relay attaches a client to a room. Errors wrapping domain.ErrAuthRejected are
// final; any other error is treated as transient and retried.
type Relay interface {
	Authenticate(ctx context.Context, room, userID string) (Session, error)
	Dial(ctx context.Context, s Session) (Link, error)
}

// Link is one live transport session. Dial returns it after the welcome frame.
type Link interface {
	Welcome() protocol.Message
	Inbound() <-chan protocol.Message
	Send(msg protocol.Message) error
	// Done закрывается при обрыве или после Close.
	Done() <-chan struct{}
	Close() error
}
