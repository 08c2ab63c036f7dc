// Package connection holds the transport lifecycle of one client session: the states,
// the legal transitions between them, and the retry schedule used while reconnecting.
package connection

type State string

const (
	StateClosed         State = "closed"
	StateAuthenticating State = "authenticating"
	StateConnecting     State = "connecting"
	StateOpen           State = "open"
	StateUnavailable    State = "unavailable"
	StateFailed         State = "failed"
)

// transitions: допустимые переходы. В closed можно попасть из любого состояния.
var transitions = map[State][]State{
	StateClosed:         {StateAuthenticating},
	StateAuthenticating: {StateConnecting, StateFailed},
	StateConnecting:     {StateOpen, StateUnavailable, StateFailed},
	StateOpen:           {StateConnecting},
	StateUnavailable:    {StateConnecting},
	StateFailed:         {StateAuthenticating},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	if to == StateClosed {
		return from != StateClosed
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal: состояния, из которых машина сама не выходит.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}
