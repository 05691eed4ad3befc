// Package event provides typed observer lists with synchronous, in-order
// delivery.
//
// An Emitter is the publish side of a single notification stream such as
// "document opened" or "buffer deleted". Subscribers are called in the order
// they subscribed, on the goroutine that calls Emit.
package event

import (
	"sync"
)

// Handler receives a single notification.
type Handler[T any] func(T)

type entry[T any] struct {
	id      uint64
	handler Handler[T]
}

// Emitter delivers values of type T to its subscribers.
// The zero value is ready to use.
type Emitter[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers []entry[T]
}

// Subscribe registers a handler. The returned Subscription removes it.
func (e *Emitter[T]) Subscribe(handler Handler[T]) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.handlers = append(e.handlers, entry[T]{id: id, handler: handler})

	return &Subscription{cancel: func() { e.unsubscribe(id) }}
}

// Emit calls every subscribed handler with v.
// Handlers added or removed during delivery take effect on the next Emit.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	handlers := make([]Handler[T], len(e.handlers))
	for i, h := range e.handlers {
		handlers[i] = h.handler
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(v)
	}
}

// Len returns the number of active subscriptions.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

// Clear removes every subscription.
func (e *Emitter[T]) Clear() {
	e.mu.Lock()
	e.handlers = nil
	e.mu.Unlock()
}

func (e *Emitter[T]) unsubscribe(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, h := range e.handlers {
		if h.id == id {
			e.handlers = append(e.handlers[:i], e.handlers[i+1:]...)
			return
		}
	}
}

// Subscription represents an active handler registration.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the handler. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Subscriptions collects subscriptions so they can be released together.
type Subscriptions []*Subscription

// Add appends subs to the collection.
func (ss *Subscriptions) Add(subs ...*Subscription) {
	*ss = append(*ss, subs...)
}

// Unsubscribe releases every collected subscription and empties the collection.
func (ss *Subscriptions) Unsubscribe() {
	for _, s := range *ss {
		s.Unsubscribe()
	}
	*ss = nil
}
