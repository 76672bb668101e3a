package syncx

import "sync"

// Sequencer releases results in the order their slots were reserved,
// regardless of the order they complete in. Delivery happens under the
// sequencer's lock, so deliver calls never overlap.
type Sequencer[T any] struct {
	mu      sync.Mutex
	deliver func(T)
	next    uint64
	issued  uint64
	held    map[uint64]slot[T]
	closed  bool
}

type slot[T any] struct {
	value T
	ok    bool
}

func NewSequencer[T any](deliver func(T)) *Sequencer[T] {
	return &Sequencer[T]{deliver: deliver, held: make(map[uint64]slot[T])}
}

// Reserve claims the next slot. Slots start at zero.
func (s *Sequencer[T]) Reserve() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.issued
	s.issued++
	return id
}

// Complete fills slot id and delivers every contiguous ready slot.
// It reports false if the sequencer was already flushed.
func (s *Sequencer[T]) Complete(id uint64, v T) bool {
	return s.settle(id, slot[T]{value: v, ok: true})
}

// Release gives up slot id without a value so later slots are not blocked.
func (s *Sequencer[T]) Release(id uint64) {
	s.settle(id, slot[T]{})
}

func (s *Sequencer[T]) settle(id uint64, sl slot[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || id < s.next {
		return false
	}
	s.held[id] = sl
	for {
		ready, ok := s.held[s.next]
		if !ok {
			break
		}
		delete(s.held, s.next)
		s.next++
		if ready.ok {
			s.deliver(ready.value)
		}
	}
	return true
}

// Pending returns the number of reserved slots not yet delivered or released.
func (s *Sequencer[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.issued - s.next)
}

// Flush delivers every held value in slot order, skipping gaps left by
// unfinished slots, and closes the sequencer. Later completions are refused.
func (s *Sequencer[T]) Flush() (delivered, abandoned int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, 0
	}
	s.closed = true
	for ; s.next < s.issued; s.next++ {
		sl, ok := s.held[s.next]
		if !ok {
			abandoned++
			continue
		}
		delete(s.held, s.next)
		if sl.ok {
			s.deliver(sl.value)
			delivered++
		}
	}
	return delivered, abandoned
}
