// Package mcp provides the MCP client side of the protocol: NDJSON framing
// over a child's stdio, request/response correlation, and the protocol calls
// the session needs.
package mcp

import (
	"context"
	"encoding/json"
	"time"
)

// Requester sends correlated requests and fire-and-forget notifications.
// StdioTransport implements it; tests may substitute their own.
type Requester interface {
	// SendRequest sends method with params and waits for the matching
	// response. A zero timeout selects the implementation's default.
	SendRequest(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)
	// Notify sends a notification; no response is expected.
	Notify(ctx context.Context, method string, params any) error
}

// Tool represents an MCP tool definition as advertised by tools/list.
// InputSchema is kept raw so property order survives for later parsing.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}
