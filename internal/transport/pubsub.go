package transport

import "sync"

type Handler func(Event)

// subscriptions fans events out to handlers. Handlers run on the
// publishing goroutine, outside the lock.
type subscriptions struct {
	mu     sync.Mutex
	nextID uint64
	byKind map[EventKind]map[uint64]Handler
}

// anyKind subscribes to every event.
const anyKind EventKind = ""

func (s *subscriptions) add(kind EventKind, h Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byKind == nil {
		s.byKind = make(map[EventKind]map[uint64]Handler)
	}
	if s.byKind[kind] == nil {
		s.byKind[kind] = make(map[uint64]Handler)
	}
	s.nextID++
	id := s.nextID
	s.byKind[kind][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.byKind[kind], id)
		})
	}
}

func (s *subscriptions) publish(ev Event) {
	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.byKind[ev.Kind])+len(s.byKind[anyKind]))
	for _, h := range s.byKind[ev.Kind] {
		handlers = append(handlers, h)
	}
	for _, h := range s.byKind[anyKind] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (s *subscriptions) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.byKind {
		n += len(m)
	}
	return n
}
