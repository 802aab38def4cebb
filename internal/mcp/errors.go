package mcp

import "github.com/cockroachdb/errors"

// Transport failure taxonomy. Wrapped errors keep these marks, so callers
// test with errors.Is.
var (
	// ErrProcessSpawn means the server executable could not be found or launched.
	ErrProcessSpawn = errors.New("server process could not be started")

	// ErrTransportClosed means the child exited or a pipe broke.
	ErrTransportClosed = errors.New("transport closed")

	// ErrRequestTimeout means no response arrived before the request deadline.
	ErrRequestTimeout = errors.New("request timed out")
)
