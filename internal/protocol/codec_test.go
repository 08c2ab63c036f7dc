package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	"github.com/cwrk-planet/canvas-rooms/internal/replica"
)

func TestByName(t *testing.T) {
	c, err := ByName("")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, c.Name())
	assert.False(t, c.Binary())

	c, err = ByName(" CBOR ")
	require.NoError(t, err)
	assert.True(t, c.Binary())

	_, err = ByName("xml")
	assert.Error(t, err)
}

func TestCodecs_CarryArtifactOps(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 30, 0, 123000000, time.UTC)
	op := replica.Op{
		Kind: replica.OpInsert,
		ID:   "a1",
		Artifact: &domain.Artifact{
			ID:        "a1",
			Prompt:    "lighthouse",
			ImageURL:  "https://cdn.example/a1.jpeg",
			Position:  domain.GridCell{X: 96, Y: 96},
			CreatedAt: created,
			Room:      "room-0",
		},
		Stamp: replica.Stamp{Clock: 7, Origin: "c1"},
	}

	for _, c := range []Codec{JSON{}, CBOR{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Encode(ArtifactOp(op))
			require.NoError(t, err)

			var got Message
			require.NoError(t, c.Decode(data, &got))
			assert.Equal(t, TypeArtifactInsert, got.Type)
			require.NotNil(t, got.Op)
			require.NotNil(t, got.Op.Artifact)
			assert.Equal(t, op.Stamp, got.Op.Stamp)
			assert.Equal(t, op.Artifact.Position, got.Op.Artifact.Position)
			assert.True(t, created.Equal(got.Op.Artifact.CreatedAt))
		})
	}
}

func TestCBOR_Deterministic(t *testing.T) {
	msg := Message{
		Type:  TypeBroadcast,
		From:  "c1",
		Event: map[string]any{"z": 1, "a": "x", "m": true},
	}
	first, err := CBOR{}.Encode(msg)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := CBOR{}.Encode(msg)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	var got Message
	require.NoError(t, CBOR{}.Decode(first, &got))
	ev, ok := got.Event.(map[string]any)
	require.True(t, ok, "event decoded as %T", got.Event)
	assert.Equal(t, "x", ev["a"])
}

func TestArtifactOp_RemoveType(t *testing.T) {
	msg := ArtifactOp(replica.Op{Kind: replica.OpRemove, ID: "a1"})
	assert.Equal(t, TypeArtifactRemove, msg.Type)
}
