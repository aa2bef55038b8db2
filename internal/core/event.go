package core

import "sync"

// Unsubscribe removes a previously registered callback.
// Calling it more than once is a no-op.
type Unsubscribe func()

// Event is a minimal callback registry shared by collaborator
// implementations. The zero value is ready to use.
type Event[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

func (e *Event[T]) Subscribe(fn func(T)) Unsubscribe {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fns == nil {
		e.fns = make(map[int]func(T))
	}
	id := e.next
	e.next++
	e.fns[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.fns, id)
		e.mu.Unlock()
	}
}

// Emit invokes every subscribed callback with v. Callbacks run outside the
// registry lock so they may subscribe or unsubscribe freely.
func (e *Event[T]) Emit(v T) {
	e.mu.Lock()
	fns := make([]func(T), 0, len(e.fns))
	for _, fn := range e.fns {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
