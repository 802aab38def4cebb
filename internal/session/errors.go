package session

import (
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotConnected means the operation needs an active server connection.
	ErrNotConnected = errors.New("not connected to an MCP server")

	// ErrToolNotFound means a name matched neither a canonical nor a raw tool name.
	ErrToolNotFound = errors.New("tool not found")

	// ErrConnectInProgress means another connect has not finished its handshake.
	ErrConnectInProgress = errors.New("another connect is already in progress")
)

func notConnected() error {
	return errors.WithHint(ErrNotConnected, "connect to a server first: connect <name> <command> [args...]")
}

func toolNotFound(name string, suggestions []string) error {
	err := errors.Wrapf(ErrToolNotFound, "%q", name)
	if len(suggestions) > 0 {
		return errors.WithHintf(err, "did you mean %s?", strings.Join(suggestions, ", "))
	}
	return errors.WithHint(err, "run list-tools to see the available tools")
}
