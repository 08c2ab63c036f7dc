package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	"github.com/cwrk-planet/canvas-rooms/internal/protocol"
	"github.com/cwrk-planet/canvas-rooms/internal/relay"
)

// TokenVerifier checks a session token for a room and returns the user id it was
// issued to.
type TokenVerifier interface {
	Verify(token, roomID string) (userID string, err error)
}

type Options struct {
	PingEvery    time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *relay.Hub
	auth     TokenVerifier

	pingEvery    time.Duration
	writeTimeout time.Duration
	readLimit    int64
}

func NewServer(hub *relay.Hub, auth TokenVerifier, opts Options) *Server {
	if opts.PingEvery <= 0 {
		opts.PingEvery = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 20
	}
	return &Server{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery:    opts.PingEvery,
		writeTimeout: opts.WriteTimeout,
		readLimit:    opts.ReadLimit,
	}
}

// WS endpoint: GET /ws/rooms/{id}?access_token=...&codec=json|cbor
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accessToken := strings.TrimSpace(q.Get("access_token"))
	if accessToken == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}
	roomID := chi.URLParam(r, "id")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}
	codec, err := protocol.ByName(q.Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID, err := s.auth.Verify(accessToken, roomID)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, domain.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, "invalid access_token", status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	peer := s.hub.Join(roomID, userID)
	c := &wsConn{conn: conn, codec: codec, peer: peer}

	go s.writeLoop(c)
	s.readLoop(c)

	s.hub.Leave(peer)
	if err := conn.Close(); err != nil {
		slog.Debug("ws close failed", "room", roomID, "user", userID, "err", err)
	}
}

func (s *Server) readLoop(c *wsConn) {
	c.conn.SetReadLimit(s.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("ws read failed", "room", c.peer.RoomID(), "conn", c.peer.ID(), "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))

		var msg protocol.Message
		if err := c.codec.Decode(data, &msg); err != nil {
			continue
		}
		s.hub.Handle(c.peer, msg)
	}
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()
	defer func() { _ = c.conn.Close() }()

	for {
		select {
		case msg := <-c.peer.Messages():
			if err := c.send(msg, s.writeTimeout); err != nil {
				slog.Debug("ws write failed", "room", c.peer.RoomID(), "conn", c.peer.ID(), "err", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				return
			}
		case <-c.peer.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(s.writeTimeout))
			return
		}
	}
}

type wsConn struct {
	conn  *websocket.Conn
	codec protocol.Codec
	peer  *relay.Peer
}

func (c *wsConn) send(msg protocol.Message, timeout time.Duration) error {
	data, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}
	kind := websocket.TextMessage
	if c.codec.Binary() {
		kind = websocket.BinaryMessage
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(kind, data)
}
