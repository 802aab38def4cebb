package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// SupportedProtocolVersions lists protocol versions newest first. Initialize
// walks the list until the server accepts one.
var SupportedProtocolVersions = []string{
	"2025-06-18",
	"2025-03-26",
	"2024-11-05",
}

// maxToolPages bounds tools/list pagination against servers that keep
// returning a cursor.
const maxToolPages = 100

// ClientInfo identifies this client in the initialize handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Client implements the MCP calls the session needs over a Requester.
type Client struct {
	rq   Requester
	info ClientInfo

	// Server info from initialization
	serverName      string
	serverVersion   string
	protocolVersion string // Negotiated protocol version
	instructions    string
}

// initializeParams is the params for the initialize request.
type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

// initializeResult is the result of the initialize request.
type initializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    any        `json:"capabilities"`
	ServerInfo      serverInfo `json:"serverInfo"`
	Instructions    string     `json:"instructions,omitempty"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// toolsListParams is the params for tools/list.
type toolsListParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// toolsListResult is the result of tools/list.
type toolsListResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// toolCallParams is the params for tools/call.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// NewClient creates a new MCP client over rq.
func NewClient(rq Requester, info ClientInfo) *Client {
	if info.Name == "" {
		info.Name = "mcpcli"
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return &Client{rq: rq, info: info}
}

// Initialize performs the MCP initialization handshake, trying protocol
// versions in order until one is accepted, then sends
// notifications/initialized.
func (c *Client) Initialize(ctx context.Context, timeout time.Duration) error {
	var lastErr error
	for _, version := range SupportedProtocolVersions {
		params := initializeParams{
			ProtocolVersion: version,
			Capabilities:    map[string]any{},
			ClientInfo:      c.info,
		}

		raw, err := c.rq.SendRequest(ctx, "initialize", params, timeout)
		if err != nil {
			if isProtocolVersionError(err) {
				lastErr = err
				continue
			}
			return errors.Wrap(err, "initialize")
		}

		var result initializeResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return errors.Wrap(err, "decode initialize result")
		}

		c.serverName = result.ServerInfo.Name
		c.serverVersion = result.ServerInfo.Version
		c.instructions = result.Instructions
		c.protocolVersion = result.ProtocolVersion
		if c.protocolVersion == "" {
			c.protocolVersion = version
		}

		if err := c.rq.Notify(ctx, "notifications/initialized", nil); err != nil {
			return errors.Wrap(err, "initialized notification")
		}
		return nil
	}

	if lastErr != nil {
		return errors.Wrap(lastErr, "all protocol versions rejected")
	}
	return errors.New("initialize: no protocol versions to try")
}

// isProtocolVersionError checks if an error indicates a protocol version rejection.
func isProtocolVersionError(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	msg := rpcErr.Message
	return strings.Contains(msg, "protocol") && strings.Contains(msg, "version") ||
		strings.Contains(msg, "protocolVersion") ||
		strings.Contains(msg, "unsupported version")
}

// ServerInfo returns information about the connected server.
func (c *Client) ServerInfo() (name, version string) {
	return c.serverName, c.serverVersion
}

// ProtocolVersion returns the negotiated protocol version.
func (c *Client) ProtocolVersion() string {
	return c.protocolVersion
}

// Instructions returns the server's usage instructions, if it sent any.
func (c *Client) Instructions() string {
	return c.instructions
}

// ListTools retrieves every tool from the server, following pagination.
func (c *Client) ListTools(ctx context.Context, timeout time.Duration) ([]Tool, error) {
	var tools []Tool
	cursor := ""
	for page := 0; page < maxToolPages; page++ {
		var params any
		if cursor != "" {
			params = toolsListParams{Cursor: cursor}
		}
		raw, err := c.rq.SendRequest(ctx, "tools/list", params, timeout)
		if err != nil {
			return nil, errors.Wrap(err, "tools/list")
		}

		var result toolsListResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, errors.Wrap(err, "decode tools/list result")
		}
		tools = append(tools, result.Tools...)

		if result.NextCursor == "" {
			return tools, nil
		}
		cursor = result.NextCursor
	}
	return nil, errors.Newf("tools/list: more than %d pages", maxToolPages)
}

// CallTool invokes a tool and returns the server's result verbatim.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if len(arguments) == 0 {
		arguments = json.RawMessage("{}")
	}
	raw, err := c.rq.SendRequest(ctx, "tools/call", toolCallParams{Name: name, Arguments: arguments}, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "tools/call %s", name)
	}
	return raw, nil
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	if _, err := c.rq.SendRequest(ctx, "ping", nil, timeout); err != nil {
		return errors.Wrap(err, "ping")
	}
	return nil
}
