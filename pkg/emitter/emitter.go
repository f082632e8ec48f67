// Package emitter provides a small synchronous publish/subscribe hub keyed by event name.
package emitter

import (
	"fmt"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
)

// Handler receives an emitted value.
type Handler[T any] func(T)

type subscription[T any] struct {
	id      uint64
	handler Handler[T]
}

// Emitter dispatches values to handlers registered under an event name.
// Handlers run synchronously in subscription order. A panicking handler is
// logged and does not prevent the remaining handlers from running.
type Emitter[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]subscription[T]
	logger   *log.Helper
}

// New creates an emitter. Handler panics are recovered and logged to logger,
// or to log.DefaultLogger when logger is nil.
func New[T any](logger log.Logger) *Emitter[T] {
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &Emitter[T]{
		handlers: make(map[string][]subscription[T]),
		logger:   log.NewHelper(logger),
	}
}

// On subscribes h to event and returns a function removing the subscription.
func (e *Emitter[T]) On(event string, h Handler[T]) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.handlers[event] = append(e.handlers[event], subscription[T]{id: id, handler: h})

	return func() { e.off(event, id) }
}

func (e *Emitter[T]) off(event string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.handlers[event]
	for i, s := range subs {
		if s.id == id {
			// copy so in-flight Emit snapshots stay intact
			next := make([]subscription[T], 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			e.handlers[event] = next
			return
		}
	}
}

// Emit calls every handler subscribed to event with v and returns how many ran.
func (e *Emitter[T]) Emit(event string, v T) int {
	e.mu.RLock()
	subs := e.handlers[event]
	e.mu.RUnlock()

	for _, s := range subs {
		e.dispatch(event, s.handler, v)
	}
	return len(subs)
}

// Count returns the number of handlers subscribed to event.
func (e *Emitter[T]) Count(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[event])
}

// Clear removes every subscription.
func (e *Emitter[T]) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = make(map[string][]subscription[T])
}

func (e *Emitter[T]) dispatch(event string, h Handler[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorw("msg", "event handler panicked",
				"event", event,
				"panic", fmt.Sprint(r))
		}
	}()
	h(v)
}
