package connection

import (
	"errors"
	"fmt"
	"sync"
)

var ErrIllegalTransition = errors.New("illegal connection state transition")

// Observer is called after every successful transition.
type Observer func(from, to State)

// Machine is the observable connection state. Safe for concurrent use; observers are
// called outside the lock, in registration order.
type Machine struct {
	mu        sync.Mutex
	state     State
	observers map[uint64]Observer
	order     []uint64
	nextID    uint64
}

func NewMachine() *Machine {
	return &Machine{
		state:     StateClosed,
		observers: make(map[uint64]Observer),
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves the machine to the given state and notifies observers.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	m.state = to
	obs := m.snapshotObservers()
	m.mu.Unlock()

	for _, o := range obs {
		o(from, to)
	}
	return nil
}

// Subscribe registers an observer. The returned func removes it and is safe to call twice.
func (m *Machine) Subscribe(o Observer) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.observers[id] = o
	m.order = append(m.order, id)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.observers[id]; !ok {
			return
		}
		delete(m.observers, id)
		for i, v := range m.order {
			if v == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
}

// Observers returns how many observers are registered.
func (m *Machine) Observers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.observers)
}

func (m *Machine) snapshotObservers() []Observer {
	out := make([]Observer, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.observers[id])
	}
	return out
}
