package config

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Supported generate-config output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// ClientConfig is the "mcpServers" document understood by common MCP hosts.
type ClientConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers" yaml:"mcpServers" toml:"mcpServers"`
}

// ServerEntry is one stdio server in a ClientConfig.
type ServerEntry struct {
	Command string   `json:"command" yaml:"command" toml:"command"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
}

// GenerateConfig renders a host configuration for ds in the given format.
// .jar commands are expanded to their java invocation first.
func GenerateConfig(ds DefaultServer, format string) ([]byte, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	command, args := ExpandLaunch(ds.Command, ds.Args)
	doc := ClientConfig{
		MCPServers: map[string]ServerEntry{
			ds.Name: {Command: command, Args: args},
		},
	}

	switch strings.ToLower(format) {
	case "", FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "marshal json")
		}
		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, errors.Wrap(err, "marshal yaml")
		}
		if err := enc.Close(); err != nil {
			return nil, errors.Wrap(err, "marshal yaml")
		}
		return buf.Bytes(), nil
	case FormatTOML:
		data, err := toml.Marshal(doc)
		if err != nil {
			return nil, errors.Wrap(err, "marshal toml")
		}
		return data, nil
	default:
		return nil, errors.WithHint(
			errors.Newf("unknown config format %q", format),
			"supported formats are json, yaml and toml",
		)
	}
}
