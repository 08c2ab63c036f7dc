// Package wsrelay attaches connections to a relay over HTTP authentication and a
// websocket link.
package wsrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	"github.com/cwrk-planet/canvas-rooms/internal/protocol"
	"github.com/cwrk-planet/canvas-rooms/internal/realtime"
)

type Relay struct {
	base   *url.URL
	codec  protocol.Codec
	http   *http.Client
	dialer *websocket.Dialer

	welcomeTimeout time.Duration
	writeTimeout   time.Duration
}

// New creates a relay client for baseURL (http or https). A nil codec selects JSON.
func New(baseURL string, codec protocol.Codec) (*Relay, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("relay url must be http(s), got %q", baseURL)
	}
	if codec == nil {
		codec = protocol.JSON{}
	}
	return &Relay{
		base:           u,
		codec:          codec,
		http:           &http.Client{Timeout: 10 * time.Second},
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		welcomeTimeout: 10 * time.Second,
		writeTimeout:   5 * time.Second,
	}, nil
}

type authRequest struct {
	Room   string `json:"room"`
	UserID string `json:"user_id"`
}

type authResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Room   string `json:"room"`
}

// Authenticate exchanges (room, user) for a session token via POST /auth.
func (r *Relay) Authenticate(ctx context.Context, room, userID string) (realtime.Session, error) {
	body, err := json.Marshal(authRequest{Room: room, UserID: userID})
	if err != nil {
		return realtime.Session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base.String()+"/auth", bytes.NewReader(body))
	if err != nil {
		return realtime.Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return realtime.Session{}, fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	if err := statusErr(resp); err != nil {
		return realtime.Session{}, err
	}

	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return realtime.Session{}, fmt.Errorf("decode auth response: %w", err)
	}
	if out.Token == "" {
		return realtime.Session{}, fmt.Errorf("%w: empty token", domain.ErrAuthRejected)
	}
	return realtime.Session{Room: room, UserID: userID, Token: out.Token}, nil
}

// statusErr maps rejections to domain.ErrAuthRejected; other failures stay transient.
func statusErr(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	text := strings.TrimSpace(string(msg))
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return fmt.Errorf("%w: status %d: %s", domain.ErrAuthRejected, resp.StatusCode, text)
	}
	return fmt.Errorf("relay: status %d: %s", resp.StatusCode, text)
}

func (r *Relay) wsURL(s realtime.Session) string {
	u := *r.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/rooms/" + url.PathEscape(s.Room)
	q := url.Values{}
	q.Set("access_token", s.Token)
	q.Set("codec", r.codec.Name())
	u.RawQuery = q.Encode()
	return u.String()
}

func (r *Relay) Dial(ctx context.Context, s realtime.Session) (realtime.Link, error) {
	conn, resp, err := r.dialer.DialContext(ctx, r.wsURL(s), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if serr := statusErr(resp); serr != nil {
				return nil, serr
			}
		}
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(r.welcomeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var welcome protocol.Message
	if err := r.codec.Decode(data, &welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		_ = conn.Close()
		return nil, fmt.Errorf("wsrelay: expected welcome frame")
	}

	l := &link{
		conn:         conn,
		codec:        r.codec,
		welcome:      welcome,
		in:           make(chan protocol.Message, 64),
		done:         make(chan struct{}),
		writeTimeout: r.writeTimeout,
	}
	go l.readLoop()
	return l, nil
}

type link struct {
	conn    *websocket.Conn
	codec   protocol.Codec
	welcome protocol.Message
	in      chan protocol.Message
	done    chan struct{}
	once    sync.Once

	writeMu      sync.Mutex
	writeTimeout time.Duration
}

func (l *link) Welcome() protocol.Message        { return l.welcome }
func (l *link) Inbound() <-chan protocol.Message { return l.in }
func (l *link) Done() <-chan struct{}            { return l.done }

func (l *link) readLoop() {
	defer l.shutdown()
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg protocol.Message
		if err := l.codec.Decode(data, &msg); err != nil {
			continue
		}
		select {
		case l.in <- msg:
		case <-l.done:
			return
		}
	}
}

func (l *link) Send(msg protocol.Message) error {
	select {
	case <-l.done:
		return realtime.ErrTransportDropped
	default:
	}
	data, err := l.codec.Encode(msg)
	if err != nil {
		return err
	}
	kind := websocket.TextMessage
	if l.codec.Binary() {
		kind = websocket.BinaryMessage
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	return l.conn.WriteMessage(kind, data)
}

func (l *link) shutdown() {
	l.once.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

func (l *link) Close() error {
	l.shutdown()
	return nil
}
