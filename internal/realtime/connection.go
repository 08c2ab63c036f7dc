package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwrk-planet/canvas-rooms/internal/connection"
	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	"github.com/cwrk-planet/canvas-rooms/internal/grid"
	"github.com/cwrk-planet/canvas-rooms/internal/protocol"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrTransportDropped = errors.New("transport dropped")
)

type Options struct {
	Room    string
	UserID  string
	Relay   Relay
	Backoff connection.Backoff
	// Canvas используется ArtifactStore.Place для привязки к сетке.
	Canvas grid.Mapper
	// EventQueue: буфер событийного цикла.
	EventQueue int
}

// Connection is one client session inside one room. Inbound frames and every
// subscriber callback run on a single event loop goroutine, so handlers of one
// connection never interleave. Close must not be called from a callback.
type Connection struct {
	opts    Options
	log     *slog.Logger
	machine *connection.Machine
	scope   *scope

	presence  *PresenceChannel
	artifacts *ArtifactStore
	broadcast *BroadcastBus
	errs      listeners[error]

	events   chan func()
	quit     chan struct{}
	loopDone chan struct{}

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	link   Link
	gen    uint64
	connID string
	closed bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds a connection in the closed state; Start opens it.
func New(opts Options) *Connection {
	if opts.EventQueue <= 0 {
		opts.EventQueue = 256
	}
	opts.Backoff = opts.Backoff.Normalize()

	c := &Connection{
		opts:     opts,
		log:      slog.With("component", "realtime", "room", opts.Room, "user", opts.UserID),
		machine:  connection.NewMachine(),
		scope:    newScope(),
		events:   make(chan func(), opts.EventQueue),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	c.presence = newPresenceChannel(c)
	c.artifacts = newArtifactStore(c, uuid.NewString())
	c.broadcast = newBroadcastBus(c)

	go c.eventLoop()
	return c
}

// Connect is New followed by Start.
func Connect(opts Options) (*Connection, error) {
	c := New(opts)
	if err := c.Start(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Connection) Room() string   { return c.opts.Room }
func (c *Connection) UserID() string { return c.opts.UserID }

// ID returns the relay-assigned id of the current link, empty while not open.
func (c *Connection) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

func (c *Connection) State() connection.State { return c.machine.State() }

func (c *Connection) Presence() *PresenceChannel { return c.presence }
func (c *Connection) Artifacts() *ArtifactStore  { return c.artifacts }
func (c *Connection) Broadcast() *BroadcastBus   { return c.broadcast }

// Start begins authentication from the closed state.
func (c *Connection) Start() error {
	return c.launch(connection.StateClosed)
}

// Restart re-initiates a connection that reached failed.
func (c *Connection) Restart() error {
	return c.launch(connection.StateFailed)
}

func (c *Connection) launch(from connection.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	if s := c.machine.State(); s != from {
		return fmt.Errorf("%w: cannot start from %s", connection.ErrIllegalTransition, s)
	}
	// предыдущий супервизор к этому моменту уже завершился (failed терминален)
	c.wg.Wait()

	if err := c.machine.Transition(connection.StateAuthenticating); err != nil {
		return err
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.wg.Add(1)
	go c.run(c.ctx)
	return nil
}

// Close tears the connection down: the link is closed, the state becomes closed and
// every subscription handed out by this connection is released.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		cancel := c.cancel
		link := c.link
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if link != nil {
			_ = link.Close()
		}
		c.wg.Wait()

		if c.machine.State() != connection.StateClosed {
			_ = c.machine.Transition(connection.StateClosed)
		}

		c.sync()
		c.scope.close()
		close(c.quit)
		<-c.loopDone
		c.log.Info("connection closed")
	})
	return nil
}

// OnState subscribes to state transitions; fn runs on the event loop.
func (c *Connection) OnState(fn func(from, to connection.State)) (unsubscribe func()) {
	release := c.machine.Subscribe(func(from, to connection.State) {
		c.post(func() { fn(from, to) })
	})
	return c.scope.add(release)
}

// OnError subscribes to errors the connection recovered from or stopped on.
func (c *Connection) OnError(fn func(error)) (unsubscribe func()) {
	return c.scope.add(c.errs.add(fn))
}

// Subscriptions reports how many subscriptions are still registered.
func (c *Connection) Subscriptions() int { return c.scope.len() }

// --- event loop ---

func (c *Connection) eventLoop() {
	defer close(c.loopDone)
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.quit:
			return
		}
	}
}

func (c *Connection) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.quit:
	}
}

// sync waits until everything posted so far has run.
func (c *Connection) sync() {
	done := make(chan struct{})
	c.post(func() { close(done) })
	select {
	case <-done:
	case <-c.quit:
	}
}

func (c *Connection) emitError(err error) {
	c.post(func() { c.errs.emit(err) })
}

// --- supervisor ---

func (c *Connection) run(ctx context.Context) {
	defer c.wg.Done()

	sess, err := c.opts.Relay.Authenticate(ctx, c.opts.Room, c.opts.UserID)
	if err != nil {
		if c.stop(ctx, err) {
			return
		}
		c.log.Warn("authentication failed, will retry", "err", err)
		c.emitError(err)
	}
	if !c.transition(connection.StateConnecting) {
		return
	}

	attempt := 0
	for {
		link, err := c.dial(ctx, &sess)
		if err != nil {
			if c.stop(ctx, err) {
				return
			}
			attempt++
			c.log.Warn("connect failed", "attempt", attempt, "err", err)
			c.emitError(err)

			if c.opts.Backoff.Exhausted(attempt) && c.State() == connection.StateConnecting {
				if !c.transition(connection.StateUnavailable) {
					return
				}
			}
			if !sleep(ctx, c.opts.Backoff.Delay(attempt)) {
				return
			}
			if c.State() == connection.StateUnavailable && !c.transition(connection.StateConnecting) {
				return
			}
			continue
		}

		attempt = 0
		if !c.attach(link) {
			_ = link.Close()
			return
		}

		select {
		case <-link.Done():
		case <-ctx.Done():
		}
		c.detach(link)
		if ctx.Err() != nil {
			return
		}

		c.log.Warn("link dropped, reconnecting")
		c.emitError(ErrTransportDropped)
		if !c.transition(connection.StateConnecting) {
			return
		}
		// токен мог истечь
		sess = Session{}
	}
}

// dial authenticates when the session is empty and opens a link.
func (c *Connection) dial(ctx context.Context, sess *Session) (Link, error) {
	if !sess.Valid() {
		s, err := c.opts.Relay.Authenticate(ctx, c.opts.Room, c.opts.UserID)
		if err != nil {
			return nil, err
		}
		*sess = s
	}
	return c.opts.Relay.Dial(ctx, *sess)
}

// stop reports whether the supervisor must exit: on teardown, or on a rejection that
// moves the machine to failed.
func (c *Connection) stop(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if !errors.Is(err, domain.ErrAuthRejected) {
		return false
	}
	c.log.Error("session rejected", "err", err)
	c.emitError(err)
	c.transition(connection.StateFailed)
	return true
}

func (c *Connection) transition(to connection.State) bool {
	if err := c.machine.Transition(to); err != nil {
		c.log.Debug("transition skipped", "to", to, "err", err)
		return false
	}
	return true
}

func (c *Connection) attach(link Link) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.gen++
	gen := c.gen
	c.link = link
	c.connID = link.Welcome().ConnectionID
	c.mu.Unlock()

	if !c.transition(connection.StateOpen) {
		c.mu.Lock()
		c.link = nil
		c.connID = ""
		c.mu.Unlock()
		return false
	}

	welcome := link.Welcome()
	c.post(func() { c.onOpen(gen, welcome) })

	c.wg.Add(1)
	go c.pump(gen, link)
	return true
}

func (c *Connection) detach(link Link) {
	c.mu.Lock()
	if c.link == link {
		c.link = nil
		c.connID = ""
	}
	c.mu.Unlock()
	_ = link.Close()

	c.post(c.presence.detach)
}

func (c *Connection) pump(gen uint64, link Link) {
	defer c.wg.Done()
	for {
		select {
		case msg := <-link.Inbound():
			c.post(func() { c.handle(gen, msg) })
		case <-link.Done():
			return
		}
	}
}

func (c *Connection) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.link != nil
}

// onOpen runs on the loop once per successful attach.
func (c *Connection) onOpen(gen uint64, welcome protocol.Message) {
	if !c.current(gen) {
		return
	}
	c.log.Info("connection open", "conn", welcome.ConnectionID, "peers", len(welcome.Peers), "ops", len(welcome.Ops))
	c.presence.attach(welcome.Peers)
	c.artifacts.attach(welcome.Ops)
}

func (c *Connection) handle(gen uint64, msg protocol.Message) {
	if !c.current(gen) {
		return
	}
	switch msg.Type {
	case protocol.TypePeerJoined:
		c.presence.joined(msg.ConnectionID, msg.UserID)
	case protocol.TypePeerLeft:
		c.presence.left(msg.ConnectionID)
	case protocol.TypePresence:
		if msg.Presence != nil {
			c.presence.update(msg.From, msg.UserID, *msg.Presence)
		}
	case protocol.TypeArtifactInsert, protocol.TypeArtifactRemove:
		if msg.Op != nil {
			c.artifacts.apply(*msg.Op)
		}
	case protocol.TypeBroadcast:
		c.broadcast.deliver(BroadcastEvent{ConnectionID: msg.From, Payload: msg.Event})
	case protocol.TypeError:
		c.errs.emit(fmt.Errorf("relay: %s", msg.Error))
	default:
		c.log.Debug("unknown frame", "type", msg.Type)
	}
}

// send writes to the current link; false while not open.
func (c *Connection) send(msg protocol.Message) bool {
	c.mu.Lock()
	link := c.link
	c.mu.Unlock()

	if link == nil || c.machine.State() != connection.StateOpen {
		return false
	}
	if err := link.Send(msg); err != nil {
		c.log.Debug("send failed", "type", msg.Type, "err", err)
		return false
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
