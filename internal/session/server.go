package session

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Bigsy/mcpcli/internal/events"
)

// State is the connection state of a Session.
type State = events.ConnState

const (
	StateDisconnected = events.StateDisconnected
	StateConnecting   = events.StateConnecting
	StateConnected    = events.StateConnected
)

// ServerSpec describes how to launch a server.
type ServerSpec struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	Dir     string
}

// Validate checks that the spec names a server and a command.
func (s ServerSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("server name is required")
	}
	if strings.TrimSpace(s.Command) == "" {
		return errors.Newf("server %q has no command", s.Name)
	}
	return nil
}

// ServerHandle identifies the connected server.
type ServerHandle struct {
	Name        string
	Command     string
	Args        []string
	PID         int
	ConnectedAt time.Time

	// Reported by the server during the handshake.
	ServerName      string
	ServerVersion   string
	ProtocolVersion string
	Instructions    string
}

// Status is a snapshot of the session.
type Status struct {
	State State
	// Server is nil unless connected.
	Server    *ServerHandle
	ToolCount int
	Uptime    time.Duration
	// RecentLogs are the last stderr lines of the server, oldest first.
	RecentLogs []string
}
