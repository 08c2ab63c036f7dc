package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_StartupPath(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, StateClosed, m.State())

	var seen []State
	unsub := m.Subscribe(func(_, to State) { seen = append(seen, to) })
	defer unsub()

	require.NoError(t, m.Transition(StateAuthenticating))
	require.NoError(t, m.Transition(StateConnecting))
	require.NoError(t, m.Transition(StateOpen))

	assert.Equal(t, StateOpen, m.State())
	assert.Equal(t, []State{StateAuthenticating, StateConnecting, StateOpen}, seen)
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{StateAuthenticating, StateConnecting, StateOpen, StateUnavailable} {
		assert.False(t, s.Terminal(), s)
	}
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateClosed.Terminal())
}

func TestMachine_DropAndReconnectSkipsFailed(t *testing.T) {
	m := NewMachine()
	for _, s := range []State{StateAuthenticating, StateConnecting, StateOpen} {
		require.NoError(t, m.Transition(s))
	}

	var seen []State
	m.Subscribe(func(_, to State) { seen = append(seen, to) })

	require.NoError(t, m.Transition(StateConnecting))
	require.NoError(t, m.Transition(StateOpen))

	assert.NotContains(t, seen, StateFailed)
	assert.Equal(t, StateOpen, m.State())
}

func TestMachine_FailedIsSticky(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Transition(StateAuthenticating))
	require.NoError(t, m.Transition(StateFailed))

	for _, s := range []State{StateConnecting, StateOpen, StateUnavailable} {
		err := m.Transition(s)
		assert.ErrorIs(t, err, ErrIllegalTransition)
	}
	assert.Equal(t, StateFailed, m.State())

	// только явный рестарт
	require.NoError(t, m.Transition(StateAuthenticating))
}

func TestMachine_IllegalEdges(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateClosed, StateOpen, false},
		{StateClosed, StateClosed, false},
		{StateOpen, StateFailed, false},
		{StateOpen, StateUnavailable, false},
		{StateConnecting, StateUnavailable, true},
		{StateUnavailable, StateConnecting, true},
		{StateUnavailable, StateClosed, true},
		{StateFailed, StateClosed, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestMachine_Unsubscribe(t *testing.T) {
	m := NewMachine()
	calls := 0
	unsub := m.Subscribe(func(_, _ State) { calls++ })
	assert.Equal(t, 1, m.Observers())

	unsub()
	unsub()
	assert.Equal(t, 0, m.Observers())

	require.NoError(t, m.Transition(StateAuthenticating))
	assert.Zero(t, calls)
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Budget: 5, UnavailableEvery: 3 * time.Second}

	assert.Equal(t, time.Duration(0), b.Delay(0))
	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
	assert.Equal(t, 800*time.Millisecond, b.Delay(4))
	assert.Equal(t, time.Second, b.Delay(5))
	assert.Equal(t, 3*time.Second, b.Delay(6))

	assert.False(t, b.Exhausted(4))
	assert.True(t, b.Exhausted(5))
}

func TestBackoff_Normalize(t *testing.T) {
	b := Backoff{Budget: 2}.Normalize()
	def := DefaultBackoff()

	assert.Equal(t, 2, b.Budget)
	assert.Equal(t, def.Initial, b.Initial)
	assert.Equal(t, def.Max, b.Max)
	assert.Equal(t, def.UnavailableEvery, b.UnavailableEvery)
}
