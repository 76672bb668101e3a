// Package syncx provides the small synchronization primitives the pipeline shares
// between its capture loop, dispatch goroutines and control surface.
package syncx

import "sync"

// RWGuard holds a value that one goroutine updates while others read
// snapshots of it, such as a session's live status.
type RWGuard[T any] struct {
	mu    sync.RWMutex
	value T
}

func NewGuard[T any](initial T) *RWGuard[T] {
	return &RWGuard[T]{value: initial}
}

// Update applies fn under the write lock and returns the updated copy.
func (g *RWGuard[T]) Update(fn func(*T)) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
	return g.value
}

// Get returns a copy of the value. T should be a value type.
func (g *RWGuard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}
