package fakeserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"
)

// Serve runs the fake MCP server, reading requests from in and writing responses to out.
// It handles initialize, tools/list, tools/call and ping, with configurable delays,
// errors, crashes and stream noise.
func Serve(ctx context.Context, in io.Reader, out io.Writer, cfg Config) error {
	reader := bufio.NewReader(in)
	requestCount := 0

	for _, line := range cfg.Banner {
		fmt.Fprintln(out, line)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Read JSON-RPC request (NDJSON framing - read until newline)
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var req rpcRequest
		if err := json.Unmarshal(bytes.TrimSpace(line), &req); err != nil {
			return err
		}

		// Responses to our own server->client requests
		if req.Method == "" {
			continue
		}

		requestCount++

		// Check crash conditions
		if cfg.CrashOnNthRequest > 0 && requestCount >= cfg.CrashOnNthRequest {
			os.Exit(cfg.CrashExitCode)
		}
		if cfg.CrashOnMethod != "" && req.Method == cfg.CrashOnMethod {
			os.Exit(cfg.CrashExitCode)
		}

		if cfg.Silent[req.Method] {
			continue
		}

		// Apply delay if configured
		if delay, ok := cfg.Delays[req.Method]; ok {
			time.Sleep(delay)
		}

		// Check for Malformed response mode
		if cfg.Malformed {
			out.Write([]byte("this is not valid json\n"))
			continue
		}

		// Check for forced error
		if rpcErr, ok := cfg.Errors[req.Method]; ok {
			writeErrorResponse(out, req.ID, rpcErr, cfg)
			continue
		}

		// Handle methods
		switch req.Method {
		case "initialize":
			handleInitialize(out, req, cfg)

		case "tools/list":
			handleToolsList(out, req, cfg)

		case "tools/call":
			handleToolsCall(out, req, cfg)

		case "ping":
			writeResponse(out, req.ID, struct{}{}, cfg)

		case "notifications/initialized":
			// No response needed for notifications

		default:
			if len(req.ID) == 0 {
				continue
			}
			writeErrorResponse(out, req.ID, JSONRPCError{
				Code: -32601, Message: "Method not found",
			}, cfg)
		}
	}
}

func handleInitialize(out io.Writer, req rpcRequest, cfg Config) {
	var params InitializeParams
	_ = json.Unmarshal(req.Params, &params)

	if slices.Contains(cfg.RejectProtocolVersions, params.ProtocolVersion) {
		writeErrorResponse(out, req.ID, JSONRPCError{
			Code:    -32602,
			Message: "unsupported protocol version: " + params.ProtocolVersion,
		}, cfg)
		return
	}

	version := params.ProtocolVersion
	if version == "" {
		version = "2024-11-05"
	}
	writeResponse(out, req.ID, InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      ServerInfo{Name: "fake-server", Version: "1.0.0"},
		Capabilities:    Capabilities{Tools: &ToolsCapability{}},
	}, cfg)
}

func handleToolsList(out io.Writer, req rpcRequest, cfg Config) {
	tools := cfg.Tools
	if tools == nil {
		tools = []Tool{}
	}
	if cfg.PageSize <= 0 {
		writeResponse(out, req.ID, ToolsListResult{Tools: tools}, cfg)
		return
	}

	var params ToolsListParams
	_ = json.Unmarshal(req.Params, &params)
	start, _ := strconv.Atoi(params.Cursor)
	start = min(max(start, 0), len(tools))
	end := min(start+cfg.PageSize, len(tools))

	result := ToolsListResult{Tools: tools[start:end]}
	if end < len(tools) {
		result.NextCursor = strconv.Itoa(end)
	}
	writeResponse(out, req.ID, result, cfg)
}

func handleToolsCall(out io.Writer, req rpcRequest, cfg Config) {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeErrorResponse(out, req.ID, JSONRPCError{Code: -32602, Message: "Invalid params"}, cfg)
		return
	}

	if delay, ok := cfg.ToolDelays[params.Name]; ok {
		time.Sleep(delay)
	}

	known := false
	for _, tool := range cfg.Tools {
		if tool.Name == params.Name {
			known = true
			break
		}
	}
	if !known {
		writeErrorResponse(out, req.ID, JSONRPCError{Code: -32602, Message: "Unknown tool: " + params.Name}, cfg)
		return
	}

	if cfg.ToolHandler != nil {
		content, isError, err := cfg.ToolHandler(params.Name, params.Arguments)
		if err != nil {
			writeErrorResponse(out, req.ID, JSONRPCError{Code: -32603, Message: err.Error()}, cfg)
			return
		}
		writeResponse(out, req.ID, ToolCallResult{Content: content, IsError: isError}, cfg)
		return
	}

	text := "ok"
	if cfg.EchoToolCalls {
		args := params.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		text = params.Name + " " + string(args)
	}
	writeResponse(out, req.ID, ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}, cfg)
}
