package realtime

import "sync"

// scope tracks every subscription handed out by one Connection so teardown can
// release all of them.
type scope struct {
	mu       sync.Mutex
	next     uint64
	releases map[uint64]func()
	closed   bool
}

func newScope() *scope {
	return &scope{releases: make(map[uint64]func())}
}

// add registers release and returns an idempotent unsubscribe that also forgets it.
// On a closed scope release runs immediately.
func (s *scope) add(release func()) func() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		release()
		return func() {}
	}
	s.next++
	id := s.next
	s.releases[id] = release
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		fn, ok := s.releases[id]
		delete(s.releases, id)
		s.mu.Unlock()
		if ok {
			fn()
		}
	}
}

func (s *scope) close() {
	s.mu.Lock()
	s.closed = true
	fns := make([]func(), 0, len(s.releases))
	for _, fn := range s.releases {
		fns = append(fns, fn)
	}
	clear(s.releases)
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *scope) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.releases)
}

// listeners: упорядоченный набор обработчиков одного события.
type listeners[T any] struct {
	mu    sync.Mutex
	next  uint64
	fns   map[uint64]func(T)
	order []uint64
}

func (l *listeners[T]) add(fn func(T)) (remove func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[uint64]func(T))
	}
	l.next++
	id := l.next
	l.fns[id] = fn
	l.order = append(l.order, id)

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
		for i, v := range l.order {
			if v == id {
				l.order = append(l.order[:i], l.order[i+1:]...)
				break
			}
		}
	}
}

func (l *listeners[T]) emit(v T) {
	l.mu.Lock()
	fns := make([]func(T), 0, len(l.order))
	for _, id := range l.order {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (l *listeners[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}
