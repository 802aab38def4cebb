// Package fakeserver provides a fake MCP server for testing.
package fakeserver

import (
	"encoding/json"
	"io"
	"time"
)

// Config controls the fake server's behavior.
type Config struct {
	// Tools to return from tools/list
	Tools []Tool `json:"tools"`

	// PageSize splits tools/list into pages linked by nextCursor (0 = one page).
	PageSize int `json:"pageSize"`

	// Per-method delays (simulate slow responses)
	// NOTE: Use short delays (10-50ms) in tests to avoid slow suite.
	Delays map[string]time.Duration `json:"delays"`

	// Per-tool delays for tools/call, keyed by tool name.
	ToolDelays map[string]time.Duration `json:"toolDelays"`

	// Per-method forced errors (JSON-RPC error responses)
	Errors map[string]JSONRPCError `json:"errors"`

	// Methods that are read but never answered.
	Silent map[string]bool `json:"silent"`

	// Protocol versions rejected by initialize with a version error.
	RejectProtocolVersions []string `json:"rejectProtocolVersions"`

	// Crash behavior
	CrashOnMethod     string `json:"crashOnMethod"`     // crash when this method is called
	CrashOnNthRequest int    `json:"crashOnNthRequest"` // crash on Nth request (0 = never)
	CrashExitCode     int    `json:"crashExitCode"`     // exit code when crashing

	// Protocol edge cases for stream realism
	// These options test that the client handles interleaved messages correctly.
	SendNotificationBeforeResponse bool `json:"sendNotificationBeforeResponse"` // send a notification before each response
	SendMismatchedIDFirst          bool `json:"sendMismatchedIDFirst"`          // send a response with wrong ID before correct one
	SendGarbageBeforeResponse      bool `json:"sendGarbageBeforeResponse"`      // write a non-JSON log line before each response
	SendPingBeforeResponse         bool `json:"sendPingBeforeResponse"`         // send a server->client ping request first

	// Banner lines written to stdout before serving (servers that print logs on stdout).
	Banner []string `json:"banner"`

	// Lines written to stderr on startup by the helper process.
	StderrLines []string `json:"stderrLines"`

	// Protocol edge cases
	Malformed bool `json:"malformed"` // write invalid JSON instead of responses

	// Tool call handling
	ToolHandler   ToolHandler `json:"-"`             // Custom handler for tools/call (not JSON-serializable)
	EchoToolCalls bool        `json:"echoToolCalls"` // If true, tools/call returns the tool name and arguments as text
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// rpcRequest is a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// rpcNotification is a JSON-RPC 2.0 notification.
type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// serverRequest is a request the fake server sends to the client.
type serverRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
}

// InitializeParams is the params of the initialize request.
type InitializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

// InitializeResult is the result of the initialize request.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// ServerInfo describes the server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities describes server capabilities.
type Capabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability indicates the server supports tools.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ToolsListParams is the params of tools/list.
type ToolsListParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ToolsListResult is the result of tools/list.
type ToolsListResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// ToolCallParams is the params for tools/call.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallResult is the result of tools/call.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock represents a content block in a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolHandler is a function that handles a tool call.
type ToolHandler func(name string, arguments json.RawMessage) ([]ContentBlock, bool, error)

// writeLine writes one NDJSON frame.
func writeLine(out io.Writer, v any) {
	data, _ := json.Marshal(v)
	out.Write(append(data, '\n'))
}

// writePreamble writes the stream-realism noise configured to precede responses.
func writePreamble(out io.Writer, cfg Config) {
	if cfg.SendGarbageBeforeResponse {
		out.Write([]byte("INFO fake-server: handling request\n"))
	}
	if cfg.SendNotificationBeforeResponse {
		writeLine(out, rpcNotification{JSONRPC: "2.0", Method: "test/noise"})
	}
	if cfg.SendPingBeforeResponse {
		writeLine(out, serverRequest{JSONRPC: "2.0", ID: "srv-1", Method: "ping"})
	}
}

// writeResponse writes a JSON-RPC response with NDJSON framing.
func writeResponse(out io.Writer, id json.RawMessage, result any, cfg Config) error {
	writePreamble(out, cfg)

	if cfg.SendMismatchedIDFirst {
		writeLine(out, rpcResponse{JSONRPC: "2.0", ID: json.RawMessage(`99999`), Result: json.RawMessage(`{}`)})
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}
	writeLine(out, rpcResponse{JSONRPC: "2.0", ID: id, Result: resultJSON})
	return nil
}

// writeErrorResponse writes a JSON-RPC error response with NDJSON framing.
func writeErrorResponse(out io.Writer, id json.RawMessage, rpcErr JSONRPCError, cfg Config) error {
	writePreamble(out, cfg)

	if cfg.SendMismatchedIDFirst {
		writeLine(out, rpcResponse{JSONRPC: "2.0", ID: json.RawMessage(`99999`), Error: &JSONRPCError{Code: -1, Message: "wrong"}})
	}

	writeLine(out, rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcErr})
	return nil
}
