package replica

// Signal is a typed event source for one field. Listeners run synchronously,
// in subscription order, on the goroutine that changed the field.
type Signal[T any] struct {
	next      int
	listeners []listener[T]
}

type listener[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it.
func (s *Signal[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.next++
	id := s.next
	s.listeners = append(s.listeners, listener[T]{id: id, fn: fn})
	return func() {
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Signal[T]) emit(v T) {
	for _, l := range s.listeners {
		l.fn(v)
	}
}
