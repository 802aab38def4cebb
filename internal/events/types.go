// Package events provides the event system for mcpcli. The session publishes
// connection changes, server log lines and tool discoveries; the shell
// subscribes to keep its status line current.
package events

import (
	"time"
)

// ConnState is the connection state of a session.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// IsActive returns true if a server process is running or being started.
func (s ConnState) IsActive() bool {
	return s == StateConnecting || s == StateConnected
}

// EventType identifies the kind of event.
type EventType int

const (
	EventStateChanged EventType = iota
	EventLogReceived
	EventToolsUpdated
	EventError
)

func (e EventType) String() string {
	switch e {
	case EventStateChanged:
		return "state_changed"
	case EventLogReceived:
		return "log_received"
	case EventToolsUpdated:
		return "tools_updated"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	// ServerName is the name the server was connected under.
	ServerName() string
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
type baseEvent struct {
	serverName string
	timestamp  time.Time
}

func (e baseEvent) ServerName() string   { return e.serverName }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// StateChangedEvent is emitted when the session's connection state changes.
type StateChangedEvent struct {
	baseEvent
	OldState ConnState
	NewState ConnState
	// Reason is set when the change was caused by a failure, such as the
	// server process exiting.
	Reason error
}

func (e StateChangedEvent) Type() EventType { return EventStateChanged }

// NewStateChangedEvent creates a new state changed event.
func NewStateChangedEvent(serverName string, oldState, newState ConnState, reason error) StateChangedEvent {
	return StateChangedEvent{
		baseEvent: baseEvent{serverName: serverName, timestamp: time.Now()},
		OldState:  oldState,
		NewState:  newState,
		Reason:    reason,
	}
}

// LogReceivedEvent is emitted when stderr output is received from a server.
type LogReceivedEvent struct {
	baseEvent
	Line string
}

func (e LogReceivedEvent) Type() EventType { return EventLogReceived }

// NewLogReceivedEvent creates a new log received event.
func NewLogReceivedEvent(serverName, line string) LogReceivedEvent {
	return LogReceivedEvent{
		baseEvent: baseEvent{serverName: serverName, timestamp: time.Now()},
		Line:      line,
	}
}

// ToolsUpdatedEvent is emitted when tools are discovered or refreshed.
type ToolsUpdatedEvent struct {
	baseEvent
	// ToolNames are canonical names in advertised order.
	ToolNames []string
}

func (e ToolsUpdatedEvent) Type() EventType { return EventToolsUpdated }

// NewToolsUpdatedEvent creates a new tools updated event.
func NewToolsUpdatedEvent(serverName string, toolNames []string) ToolsUpdatedEvent {
	return ToolsUpdatedEvent{
		baseEvent: baseEvent{serverName: serverName, timestamp: time.Now()},
		ToolNames: toolNames,
	}
}

// ErrorEvent is emitted when an error occurs.
type ErrorEvent struct {
	baseEvent
	Err     error
	Message string
}

func (e ErrorEvent) Type() EventType { return EventError }

// NewErrorEvent creates a new error event.
func NewErrorEvent(serverName string, err error, message string) ErrorEvent {
	return ErrorEvent{
		baseEvent: baseEvent{serverName: serverName, timestamp: time.Now()},
		Err:       err,
		Message:   message,
	}
}
