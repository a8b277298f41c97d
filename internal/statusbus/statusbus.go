// Package statusbus fans out graphics_status and graphics_error events to
// any number of observers, generalizing the register/unregister/broadcast
// select loop the teacher's sse.Hub uses for its SSE clients into a plain
// in-process event bus (no wire format of its own — callers decide how, or
// whether, to expose events over HTTP/SSE).
package statusbus

import (
	"log/slog"
	"sync"
)

// StatusEvent mirrors the graphics_status payload from spec.md §6.
type StatusEvent struct {
	Reason         string
	ActivePreset   any
	ActivePresets  any
}

// ErrorEvent mirrors the graphics_error payload from spec.md §6.
type ErrorEvent struct {
	Code    string
	Message string
}

// Event is the union delivered to observers; exactly one of Status or Err
// is non-nil.
type Event struct {
	Status *StatusEvent
	Err    *ErrorEvent
}

// Observer is a registered event sink.
type Observer struct {
	ID     string
	Events chan Event
}

// Bus is the StatusBus.
type Bus struct {
	log *slog.Logger

	mu        sync.RWMutex
	observers map[*Observer]bool
	done      chan struct{}
	broadcast chan Event
	register  chan *Observer
	unregister chan *Observer
}

// New constructs a Bus. Call Run in a goroutine before publishing.
func New(log *slog.Logger) *Bus {
	return &Bus{
		log:        log,
		observers:  make(map[*Observer]bool),
		done:       make(chan struct{}),
		broadcast:  make(chan Event, 64),
		register:   make(chan *Observer),
		unregister: make(chan *Observer),
	}
}

// Run drives the bus's event loop until Close is called.
func (b *Bus) Run() {
	for {
		select {
		case o := <-b.register:
			b.mu.Lock()
			b.observers[o] = true
			b.mu.Unlock()
			b.log.Info("status observer registered", "id", o.ID, "total", b.Count())

		case o := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.observers[o]; ok {
				delete(b.observers, o)
				close(o.Events)
			}
			b.mu.Unlock()
			b.log.Info("status observer unregistered", "id", o.ID, "total", b.Count())

		case ev := <-b.broadcast:
			b.mu.RLock()
			for o := range b.observers {
				select {
				case o.Events <- ev:
				default:
					b.log.Warn("status observer buffer full, dropping event", "id", o.ID)
				}
			}
			b.mu.RUnlock()

		case <-b.done:
			b.mu.Lock()
			for o := range b.observers {
				close(o.Events)
				delete(b.observers, o)
			}
			b.mu.Unlock()
			return
		}
	}
}

// Register adds an observer to the bus.
func (b *Bus) Register(o *Observer) {
	select {
	case b.register <- o:
	case <-b.done:
	}
}

// Unregister removes an observer from the bus.
func (b *Bus) Unregister(o *Observer) {
	select {
	case b.unregister <- o:
	case <-b.done:
	}
}

// PublishStatus fans out a graphics_status event.
func (b *Bus) PublishStatus(ev StatusEvent) {
	select {
	case b.broadcast <- Event{Status: &ev}:
	case <-b.done:
	}
}

// PublishError fans out a graphics_error event.
func (b *Bus) PublishError(ev ErrorEvent) {
	select {
	case b.broadcast <- Event{Err: &ev}:
	case <-b.done:
	}
}

// Count returns the number of registered observers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}

// Close shuts down the bus.
func (b *Bus) Close() {
	close(b.done)
}
