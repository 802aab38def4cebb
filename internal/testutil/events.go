package testutil

import (
	"sync"
	"time"

	"github.com/Bigsy/mcpcli/internal/events"
)

// EventCollector is a thread-safe event collector for test assertions.
// Subscribe it to an event bus and then query collected events.
type EventCollector struct {
	mu     sync.Mutex
	events []events.Event
	states map[string][]events.ConnState
	tools  map[string][]string
	logs   map[string][]string
}

// NewEventCollector creates a new EventCollector.
func NewEventCollector() *EventCollector {
	return &EventCollector{
		events: make([]events.Event, 0),
		states: make(map[string][]events.ConnState),
		tools:  make(map[string][]string),
		logs:   make(map[string][]string),
	}
}

// Handler returns a function suitable for bus.Subscribe().
func (c *EventCollector) Handler(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, e)

	switch evt := e.(type) {
	case events.StateChangedEvent:
		c.states[evt.ServerName()] = append(c.states[evt.ServerName()], evt.NewState)
	case events.ToolsUpdatedEvent:
		c.tools[evt.ServerName()] = evt.ToolNames
	case events.LogReceivedEvent:
		c.logs[evt.ServerName()] = append(c.logs[evt.ServerName()], evt.Line)
	}
}

// Events returns all collected events.
func (c *EventCollector) Events() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]events.Event, len(c.events))
	copy(result, c.events)
	return result
}

// StatesFor returns all states observed for a server, in order.
func (c *EventCollector) StatesFor(serverName string) []events.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]events.ConnState, len(c.states[serverName]))
	copy(result, c.states[serverName])
	return result
}

// ToolsFor returns the most recent tool names for a server.
// Returns nil if no tools have been observed.
func (c *EventCollector) ToolsFor(serverName string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	tools := c.tools[serverName]
	if tools == nil {
		return nil
	}
	return append([]string(nil), tools...)
}

// LogsFor returns the stderr lines observed for a server.
func (c *EventCollector) LogsFor(serverName string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.logs[serverName]...)
}

// WaitForState blocks until the specified state is observed or timeout expires.
// Returns true if the state was observed, false on timeout.
func (c *EventCollector) WaitForState(serverName string, state events.ConnState, timeout time.Duration) bool {
	return c.waitFor(timeout, func() bool {
		for _, s := range c.states[serverName] {
			if s == state {
				return true
			}
		}
		return false
	})
}

// WaitForLog blocks until line has been logged by the server or timeout expires.
func (c *EventCollector) WaitForLog(serverName, line string, timeout time.Duration) bool {
	return c.waitFor(timeout, func() bool {
		for _, l := range c.logs[serverName] {
			if l == line {
				return true
			}
		}
		return false
	})
}

// waitFor polls cond under the lock until it holds or timeout expires.
func (c *EventCollector) waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		ok := cond()
		c.mu.Unlock()
		if ok {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Clear resets the collector's state.
func (c *EventCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = make([]events.Event, 0)
	c.states = make(map[string][]events.ConnState)
	c.tools = make(map[string][]string)
	c.logs = make(map[string][]string)
}
