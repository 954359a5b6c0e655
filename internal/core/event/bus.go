package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered event bus. Events emitted while a step runs are
// delivered by the next Dispatch, in emission order, so handlers see a
// deterministic sequence. Emit is safe from concurrent systems.
type Bus struct {
	mu       sync.Mutex
	front    []any
	back     []any
	handlers map[reflect.Type][]func(any)
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[reflect.Type][]func(any)),
	}
}

// Emit queues an event for the next Dispatch.
func Emit[T any](b *Bus, event T) {
	b.mu.Lock()
	b.back = append(b.back, event)
	b.mu.Unlock()
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeFor[T]()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// Dispatch swaps the buffers and delivers every queued event to its
// handlers. Handlers may Emit or Subscribe; a handler added during Dispatch
// sees the events that follow it. It returns the number of events delivered.
func (b *Bus) Dispatch() int {
	b.mu.Lock()
	b.front, b.back = b.back, b.front[:0]
	events := b.front
	b.mu.Unlock()

	for _, ev := range events {
		b.mu.Lock()
		handlers := b.handlers[reflect.TypeOf(ev)]
		b.mu.Unlock()
		for _, h := range handlers {
			h(ev)
		}
	}
	clear(events)
	return len(events)
}

// Pending returns the number of events waiting for Dispatch.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.back)
}
