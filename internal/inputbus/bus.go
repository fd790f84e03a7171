// Package inputbus fans rising-edge button events out to subscribers.
//
// Delivery is synchronous on the publisher's goroutine, in registration
// order. General subscribers see every event. Listening subscribers only see
// events while the listening flag is set. Nothing is buffered: an event with
// no subscribers is dropped.
package inputbus

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"gtrainer/internal/input"
)

// Handler receives one button event.
type Handler func(input.ButtonEvent)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an explicit observer registry. The zero value is not usable; call New.
type Bus struct {
	mu        sync.RWMutex
	nextID    uint64
	general   []subscription
	listening []subscription

	listen atomic.Bool
}

// New creates an empty bus with the listening flag cleared.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers h for every published event. The returned function
// removes the registration and is safe to call more than once.
func (b *Bus) Subscribe(h Handler) func() {
	return b.add(&b.general, h)
}

// SubscribeListening registers h for events published while listening.
func (b *Bus) SubscribeListening(h Handler) func() {
	return b.add(&b.listening, h)
}

func (b *Bus) add(list *[]subscription, h Handler) func() {
	if h == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	*list = append(*list, subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, sub := range *list {
				if sub.id == id {
					// Copy so snapshots taken by an in-flight Publish stay intact.
					next := make([]subscription, 0, len(*list)-1)
					next = append(next, (*list)[:i]...)
					next = append(next, (*list)[i+1:]...)
					*list = next
					return
				}
			}
		})
	}
}

// StartListening sets the listening flag. Repeated calls collapse into one
// active state.
func (b *Bus) StartListening() {
	if b.listen.CompareAndSwap(false, true) {
		slog.Debug("[DEBUG-BUS] listening started")
	}
}

// StopListening clears the listening flag.
func (b *Bus) StopListening() {
	if b.listen.CompareAndSwap(true, false) {
		slog.Debug("[DEBUG-BUS] listening stopped")
	}
}

// IsListening reports the listening flag.
func (b *Bus) IsListening() bool {
	return b.listen.Load()
}

// Publish delivers ev to general subscribers, then to listening subscribers
// when the flag is set. A panicking handler is logged and skipped.
func (b *Bus) Publish(ev input.ButtonEvent) {
	b.mu.RLock()
	general := b.general
	listening := b.listening
	b.mu.RUnlock()

	for _, sub := range general {
		deliver(sub, ev)
	}
	if !b.listen.Load() {
		return
	}
	for _, sub := range listening {
		deliver(sub, ev)
	}
}

func deliver(sub subscription, ev input.ButtonEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[ERROR-BUS] subscriber panicked",
				"subscription", sub.id,
				"event", ev.String(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	sub.handler(ev)
}
