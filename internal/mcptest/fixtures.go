package mcptest

import (
	"encoding/json"
	"time"
)

// Common test configurations for fake MCP servers.

// DefaultConfig returns a minimal working fake server configuration.
// Tool arguments are echoed back so tests can inspect what was sent.
func DefaultConfig() FakeServerConfig {
	return FakeServerConfig{
		Tools: []Tool{
			{
				Name:        "read_file",
				Description: "Read a file from disk",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File to read"}},"required":["path"]}`),
			},
			{
				Name:        "fs_tools_write_file",
				Description: "Write content to a file",
				InputSchema: json.RawMessage(`{"type":"object","properties":{` +
					`"path":{"type":"string","description":"Destination"},` +
					`"content":{"type":"string"},` +
					`"append":{"type":"boolean","description":"Append instead of truncating"},` +
					`"retries":{"type":"integer"}},` +
					`"required":["path","content"]}`),
			},
			{
				Name:        "echo",
				Description: "Echo the input back",
			},
		},
		EchoToolCalls: true,
	}
}

// EmptyToolsConfig returns a config with no tools.
func EmptyToolsConfig() FakeServerConfig {
	return FakeServerConfig{
		Tools: []Tool{},
	}
}

// LargeToolListConfig returns a config with many tools served in pages.
func LargeToolListConfig(count, pageSize int) FakeServerConfig {
	tools := make([]Tool, count)
	for i := 0; i < count; i++ {
		tools[i] = Tool{
			Name:        "tool_" + string(rune('a'+i%26)) + "_" + string(rune('0'+i/26)),
			Description: "A test tool for performance testing",
		}
	}
	return FakeServerConfig{Tools: tools, PageSize: pageSize}
}

// SlowInitConfig returns a config that delays the initialize response.
func SlowInitConfig(delay time.Duration) FakeServerConfig {
	return FakeServerConfig{
		Tools: []Tool{{Name: "test_tool"}},
		Delays: map[string]time.Duration{
			"initialize": delay,
		},
	}
}

// SlowToolConfig returns a config where calls to the "slow" tool are delayed
// and calls to "echo" are answered immediately.
func SlowToolConfig(delay time.Duration) FakeServerConfig {
	return FakeServerConfig{
		Tools:         []Tool{{Name: "slow"}, {Name: "echo"}},
		ToolDelays:    map[string]time.Duration{"slow": delay},
		EchoToolCalls: true,
	}
}

// SilentConfig returns a config that never answers method.
func SilentConfig(method string) FakeServerConfig {
	return FakeServerConfig{
		Tools:  []Tool{{Name: "test_tool"}},
		Silent: map[string]bool{method: true},
	}
}

// CrashOnInitConfig returns a config that crashes on initialize.
func CrashOnInitConfig(exitCode int) FakeServerConfig {
	return FakeServerConfig{
		CrashOnMethod: "initialize",
		CrashExitCode: exitCode,
	}
}

// CrashOnMethodConfig returns a config that crashes when method is called.
func CrashOnMethodConfig(method string, exitCode int) FakeServerConfig {
	return FakeServerConfig{
		Tools:         []Tool{{Name: "test_tool"}},
		CrashOnMethod: method,
		CrashExitCode: exitCode,
	}
}

// ErrorOnInitConfig returns a config that returns an error on initialize.
func ErrorOnInitConfig(code int, message string) FakeServerConfig {
	return FakeServerConfig{
		Errors: map[string]JSONRPCError{
			"initialize": {Code: code, Message: message},
		},
	}
}

// OldProtocolConfig returns a config that only accepts the oldest protocol version.
func OldProtocolConfig() FakeServerConfig {
	return FakeServerConfig{
		Tools:                  []Tool{{Name: "test_tool"}},
		RejectProtocolVersions: []string{"2025-06-18", "2025-03-26"},
	}
}

// NoisyStreamConfig returns a config that interleaves banner text, log lines,
// notifications, stray responses and server pings with real responses.
func NoisyStreamConfig() FakeServerConfig {
	cfg := DefaultConfig()
	cfg.Banner = []string{"Starting server...", "  :: Spring Boot ::  (v3.2.0)"}
	cfg.StderrLines = []string{"server ready"}
	cfg.SendGarbageBeforeResponse = true
	cfg.SendNotificationBeforeResponse = true
	cfg.SendMismatchedIDFirst = true
	cfg.SendPingBeforeResponse = true
	return cfg
}

// MalformedResponseConfig returns a config that sends invalid JSON.
func MalformedResponseConfig() FakeServerConfig {
	return FakeServerConfig{
		Malformed: true,
	}
}
