package types

import "sync"

/**
 * SharedList is a named accumulator visible to both goroutines of an
 * acquisition. It is created by the feature list handler and passed by
 * pointer into every node that needs it.
 */
type SharedList[T any] struct {
	mu    sync.Mutex
	name  string
	items []T
}

func NewSharedList[T any](name string) *SharedList[T] {
	return &SharedList[T]{name: name}
}

func (l *SharedList[T]) Name() string {
	return l.name
}

func (l *SharedList[T]) Append(items ...T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, items...)
}

func (l *SharedList[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *SharedList[T]) Snapshot() []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := make([]T, len(l.items))
	copy(cp, l.items)
	return cp
}

func (l *SharedList[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
}
