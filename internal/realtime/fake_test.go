package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	"github.com/cwrk-planet/canvas-rooms/internal/protocol"
)

var errNetwork = errors.New("dial tcp: connection refused")

// fakeRelay hands out scripted links; every Dial consumes one entry of dialErrs.
type fakeRelay struct {
	mu       sync.Mutex
	authErr  error
	dialErrs []error
	dials    int
	peers    []Peer
	links    chan *fakeLink
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{links: make(chan *fakeLink, 16)}
}

func (r *fakeRelay) setAuthErr(err error) {
	r.mu.Lock()
	r.authErr = err
	r.mu.Unlock()
}

func (r *fakeRelay) Authenticate(ctx context.Context, room, userID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.authErr != nil {
		return Session{}, r.authErr
	}
	return Session{Room: room, UserID: userID, Token: "t"}, nil
}

func (r *fakeRelay) Dial(ctx context.Context, s Session) (Link, error) {
	r.mu.Lock()
	r.dials++
	n := r.dials
	var err error
	if len(r.dialErrs) > 0 {
		err, r.dialErrs = r.dialErrs[0], r.dialErrs[1:]
	}
	peers := r.peers
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	l := &fakeLink{
		welcome: protocol.Message{Type: protocol.TypeWelcome, ConnectionID: fmt.Sprintf("conn-%d", n), Room: s.Room, Peers: peers},
		in:      make(chan protocol.Message, 16),
		out:     make(chan protocol.Message, 64),
		done:    make(chan struct{}),
	}
	r.links <- l
	return l, nil
}

type fakeLink struct {
	welcome protocol.Message
	in      chan protocol.Message
	out     chan protocol.Message
	done    chan struct{}
	once    sync.Once
}

func (l *fakeLink) Welcome() protocol.Message        { return l.welcome }
func (l *fakeLink) Inbound() <-chan protocol.Message { return l.in }
func (l *fakeLink) Done() <-chan struct{}            { return l.done }

func (l *fakeLink) Send(msg protocol.Message) error {
	select {
	case <-l.done:
		return ErrTransportDropped
	case l.out <- msg:
		return nil
	}
}

func (l *fakeLink) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func rejected() error {
	return fmt.Errorf("%w: status 401", domain.ErrAuthRejected)
}
