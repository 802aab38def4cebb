package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// busBuffer is the publish buffer size.
const busBuffer = 100

// Handler is a function that handles events.
type Handler func(Event)

// Bus is a goroutine-safe event bus for dispatching events.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	ch       chan Event
	done     chan struct{}
	closed   sync.Once
	logger   *slog.Logger
	dropped  atomic.Uint64
}

// NewBus creates a new event bus. Dropped events are reported to logger
// (slog.Default() when nil).
func NewBus(logger *slog.Logger) *Bus {
	b := newBus(logger, busBuffer)
	go b.run()
	return b
}

func newBus(logger *slog.Logger, buffer int) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make([]Handler, 0),
		ch:       make(chan Event, buffer), // Buffer to prevent blocking publishers
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// run processes events from the channel.
func (b *Bus) run() {
	for {
		select {
		case event := <-b.ch:
			b.dispatch(event)
		case <-b.done:
			return
		}
	}
}

// dispatch sends an event to all registered handlers.
func (b *Bus) dispatch(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		if h != nil {
			h(event)
		}
	}
}

// Subscribe registers a handler to receive events.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	idx := len(b.handlers) - 1
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		// Mark as nil rather than removing to preserve indices
		if idx < len(b.handlers) {
			b.handlers[idx] = nil
		}
	}
}

// Publish sends an event to all subscribers.
// This is non-blocking due to the buffered channel. A nil Bus drops
// everything silently.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	select {
	case b.ch <- event:
	default:
		b.dropped.Add(1)
		b.logger.Debug("event bus full, dropping event", "type", event.Type(), "server", event.ServerName())
	}
}

// Dropped returns how many events were dropped because the buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close shuts down the event bus. Safe to call more than once.
func (b *Bus) Close() {
	b.closed.Do(func() { close(b.done) })
}
