package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	"github.com/cwrk-planet/canvas-rooms/internal/protocol"
	"github.com/cwrk-planet/canvas-rooms/internal/replica"
)

func next(t *testing.T, p *Peer) protocol.Message {
	t.Helper()
	select {
	case msg := <-p.Messages():
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no message for peer %s", p.ID())
		return protocol.Message{}
	}
}

func empty(t *testing.T, p *Peer) {
	t.Helper()
	select {
	case msg := <-p.Messages():
		t.Fatalf("unexpected message %q for peer %s", msg.Type, p.ID())
	default:
	}
}

func TestHub_JoinWelcomeAndPeerEvents(t *testing.T) {
	h := NewHub(Options{})

	a := h.Join("room-0", "alice")
	w := next(t, a)
	assert.Equal(t, protocol.TypeWelcome, w.Type)
	assert.Equal(t, a.ID(), w.ConnectionID)
	assert.Empty(t, w.Peers)

	b := h.Join("room-0", "bob")
	wb := next(t, b)
	require.Len(t, wb.Peers, 1)
	assert.Equal(t, a.ID(), wb.Peers[0].ConnectionID)
	assert.Equal(t, "alice", wb.Peers[0].UserID)

	joined := next(t, a)
	assert.Equal(t, protocol.TypePeerJoined, joined.Type)
	assert.Equal(t, b.ID(), joined.ConnectionID)

	assert.Equal(t, map[string]int{"room-0": 2}, h.Occupancy())

	h.Leave(b)
	left := next(t, a)
	assert.Equal(t, protocol.TypePeerLeft, left.Type)
	assert.Equal(t, b.ID(), left.ConnectionID)

	select {
	case <-b.Done():
	default:
		t.Fatal("left peer must be done")
	}

	h.Leave(a)
	assert.Empty(t, h.Occupancy())
}

func TestHub_PresenceFanoutExcludesSender(t *testing.T) {
	h := NewHub(Options{})
	a := h.Join("r", "alice")
	b := h.Join("r", "bob")
	next(t, a)
	next(t, a) // peer_joined
	next(t, b)

	h.Handle(a, protocol.Message{
		Type:     protocol.TypePresence,
		Presence: &domain.Presence{Cursor: &domain.GridCell{X: 32, Y: 64}, Status: domain.StatusReady},
	})

	got := next(t, b)
	assert.Equal(t, protocol.TypePresence, got.Type)
	assert.Equal(t, a.ID(), got.From)
	require.NotNil(t, got.Presence)
	assert.Equal(t, &domain.GridCell{X: 32, Y: 64}, got.Presence.Cursor)
	empty(t, a)

	// новый участник видит текущее присутствие в welcome
	c := h.Join("r", "carol")
	wc := next(t, c)
	require.Len(t, wc.Peers, 2)
	assert.Equal(t, domain.StatusReady, wc.Peers[0].Presence.Status)
}

func TestHub_ArtifactsReplicatedAndSnapshotted(t *testing.T) {
	h := NewHub(Options{})
	a := h.Join("r", "alice")
	b := h.Join("r", "bob")
	next(t, a)
	next(t, a)
	next(t, b)

	src := replica.NewArtifactSet("alice")
	op, _ := src.Insert(domain.Artifact{ID: "x", Position: domain.GridCell{X: 96, Y: 96}, Room: "spoofed"})

	h.Handle(a, protocol.ArtifactOp(op))
	got := next(t, b)
	assert.Equal(t, protocol.TypeArtifactInsert, got.Type)
	require.NotNil(t, got.Op)
	assert.Equal(t, "r", got.Op.Artifact.Room)

	// повтор не рассылается
	h.Handle(a, protocol.ArtifactOp(op))
	empty(t, b)

	c := h.Join("r", "carol")
	wc := next(t, c)
	require.Len(t, wc.Ops, 1)
	assert.Equal(t, "x", wc.Ops[0].ID)
	assert.Len(t, h.Artifacts("r"), 1)
}

func TestHub_RoomForgottenWhenEmpty(t *testing.T) {
	h := NewHub(Options{})
	a := h.Join("r", "alice")
	op, _ := replica.NewArtifactSet("alice").Insert(domain.Artifact{ID: "x"})
	h.Handle(a, protocol.ArtifactOp(op))
	h.Leave(a)

	assert.Nil(t, h.Artifacts("r"))
	assert.Zero(t, h.Count("r"))

	b := h.Join("r", "bob")
	assert.Empty(t, next(t, b).Ops)
}

func TestHub_BroadcastAndUnknownType(t *testing.T) {
	h := NewHub(Options{})
	a := h.Join("r", "alice")
	b := h.Join("r", "bob")
	next(t, a)
	next(t, a)
	next(t, b)

	h.Handle(a, protocol.Message{Type: protocol.TypeBroadcast, Event: "ping"})
	got := next(t, b)
	assert.Equal(t, "ping", got.Event)
	empty(t, a)

	h.Handle(a, protocol.Message{Type: "chat"})
	assert.Equal(t, protocol.TypeError, next(t, a).Type)
}

func TestHub_SlowPeerEvicted(t *testing.T) {
	h := NewHub(Options{SendQueue: 2})
	a := h.Join("r", "alice")
	b := h.Join("r", "bob") // очередь b: welcome
	next(t, a)
	next(t, a)

	for i := 0; i < 3; i++ {
		h.Handle(a, protocol.Message{Type: protocol.TypeBroadcast, Event: i})
	}

	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("slow peer must be evicted")
	}
	assert.Equal(t, 1, h.Count("r"))
}

func TestHub_PresenceRateLimitedKeepsLatest(t *testing.T) {
	h := NewHub(Options{PresenceRate: 20, PresenceBurst: 1})
	a := h.Join("r", "alice")
	b := h.Join("r", "bob")
	next(t, b)

	for _, status := range []domain.Status{domain.StatusDragging, domain.StatusMasking, domain.StatusReady} {
		h.Handle(a, protocol.Message{Type: protocol.TypePresence, Presence: &domain.Presence{Status: status}})
	}

	first := next(t, b)
	require.Equal(t, protocol.TypePresence, first.Type)
	assert.Equal(t, domain.StatusDragging, first.Presence.Status)

	// промежуточное значение схлопнуто, последнее приходит отложенной отправкой
	flushed := next(t, b)
	require.Equal(t, protocol.TypePresence, flushed.Type)
	assert.Equal(t, a.ID(), flushed.From)
	assert.Equal(t, domain.StatusReady, flushed.Presence.Status)

	time.Sleep(120 * time.Millisecond)
	empty(t, b)

	c := h.Join("r", "carol")
	assert.Equal(t, domain.StatusReady, next(t, c).Peers[0].Presence.Status)
}

func TestHub_PendingPresenceDroppedOnLeave(t *testing.T) {
	h := NewHub(Options{PresenceRate: 10, PresenceBurst: 1})
	a := h.Join("r", "alice")
	b := h.Join("r", "bob")
	next(t, b)

	h.Handle(a, protocol.Message{Type: protocol.TypePresence, Presence: &domain.Presence{Status: domain.StatusDragging}})
	h.Handle(a, protocol.Message{Type: protocol.TypePresence, Presence: &domain.Presence{Status: domain.StatusReady}})
	assert.Equal(t, protocol.TypePresence, next(t, b).Type)

	h.Leave(a)
	assert.Equal(t, protocol.TypePeerLeft, next(t, b).Type)

	time.Sleep(200 * time.Millisecond)
	empty(t, b)
}
