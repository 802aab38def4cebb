package mcp

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// ToolResult is the decoded shape of a tools/call result. The session hands
// results back raw; this type exists for callers that want to render them.
type ToolResult struct {
	Content           []ContentBlock  `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

// ContentBlock is one item of a tool result. Raw keeps the block verbatim,
// including non-text content types (images, resources, etc.).
type ContentBlock struct {
	Type string
	Text string
	Raw  json.RawMessage
}

// MarshalJSON implements json.Marshaler.
func (c ContentBlock) MarshalJSON() ([]byte, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	}{c.Type, c.Text})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *ContentBlock) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	c.Type = head.Type
	c.Text = head.Text
	c.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// DecodeToolResult parses a raw tools/call result.
func DecodeToolResult(raw json.RawMessage) (*ToolResult, error) {
	var res ToolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrap(err, "decode tool result")
	}
	return &res, nil
}

// Text joins the text blocks of the result. Non-text blocks are rendered as
// their raw JSON.
func (r *ToolResult) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, block := range r.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
			continue
		}
		parts = append(parts, string(block.Raw))
	}
	if len(parts) == 0 && len(r.StructuredContent) > 0 {
		return string(r.StructuredContent)
	}
	return strings.Join(parts, "\n")
}
