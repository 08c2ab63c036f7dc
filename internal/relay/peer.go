package relay

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cwrk-planet/canvas-rooms/internal/protocol"
)

// Peer is one connection registered in the hub. The transport drains Messages
// until Done is closed.
type Peer struct {
	id     string
	userID string
	roomID string

	send    chan protocol.Message
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter

	// presenceMu упорядочивает рассылку presence этого пира.
	presenceMu    sync.Mutex
	presenceFlush *time.Timer // отложенная отправка последнего значения
}

func newPeer(id, userID, roomID string, queue int, limiter *rate.Limiter) *Peer {
	return &Peer{
		id:      id,
		userID:  userID,
		roomID:  roomID,
		send:    make(chan protocol.Message, queue),
		done:    make(chan struct{}),
		limiter: limiter,
	}
}

func (p *Peer) ID() string     { return p.id }
func (p *Peer) UserID() string { return p.userID }
func (p *Peer) RoomID() string { return p.roomID }

// Messages: исходящая очередь пира.
func (p *Peer) Messages() <-chan protocol.Message { return p.send }

// Done is closed once the peer left the hub or was evicted as too slow.
func (p *Peer) Done() <-chan struct{} { return p.done }

// enqueue never blocks: false means the queue is full or the peer is gone.
func (p *Peer) enqueue(msg protocol.Message) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- msg:
		return true
	default:
		return false
	}
}

func (p *Peer) close() {
	p.once.Do(func() {
		close(p.done)

		p.presenceMu.Lock()
		if p.presenceFlush != nil {
			p.presenceFlush.Stop()
			p.presenceFlush = nil
		}
		p.presenceMu.Unlock()
	})
}
