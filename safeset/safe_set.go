package safeset

import "sync"

// SafeSet is a thread-safe set of unique comparable elements. The service
// uses it to track timers that are armed and must be canceled on shutdown.
type SafeSet[T comparable] struct {
	m map[T]struct{}
	sync.RWMutex
}

// NewSafeSet creates and returns a new empty SafeSet.
func NewSafeSet[T comparable]() *SafeSet[T] {
	return &SafeSet[T]{m: make(map[T]struct{})}
}

// Add adds an element to the set.
//
// Parameters:
//   - value: The element to add
//
// Returns:
//   - true if the element was not present before
func (s *SafeSet[T]) Add(value T) bool {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.m[value]; ok {
		return false
	}

	s.m[value] = struct{}{}
	return true
}

// Remove removes an element from the set.
//
// Parameters:
//   - value: The element to remove
//
// Returns:
//   - true if the element was present
func (s *SafeSet[T]) Remove(value T) bool {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.m[value]; !ok {
		return false
	}

	delete(s.m, value)
	return true
}

// Drain removes every element and returns them. Elements added while the
// caller processes the result are kept for the next Drain.
//
// Returns:
//   - The removed elements in unspecified order
func (s *SafeSet[T]) Drain() []T {
	s.Lock()
	defer s.Unlock()
	out := make([]T, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}

	s.m = make(map[T]struct{})
	return out
}
