// Package schema indexes the tools a server advertises and extracts their
// parameter metadata from each tool's JSON Schema.
package schema

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
)

// Kind is the primitive type of a parameter.
type Kind int

const (
	KindUnknown Kind = iota
	KindString
	KindNumber
	KindBoolean
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// kindOf maps a JSON Schema type name.
func kindOf(typ string) Kind {
	switch typ {
	case "string":
		return KindString
	case "number", "integer":
		return KindNumber
	case "boolean":
		return KindBoolean
	default:
		return KindUnknown
	}
}

// Param describes one tool parameter.
type Param struct {
	Name        string
	Description string
	Required    bool
	Kind        Kind
}

// Tool is one indexed tool.
type Tool struct {
	// Name is the canonical display name.
	Name string
	// RawName is the name as advertised; tool calls are sent with it.
	RawName     string
	Description string
	// Params are in the order the schema lists them.
	Params      []Param
	InputSchema json.RawMessage
	// SchemaErr is set when the input schema could not be parsed. The tool
	// is still indexed, with no parameters.
	SchemaErr error
}

// RequiredParams returns the names of required parameters, in order.
func (t Tool) RequiredParams() []string {
	var names []string
	for _, p := range t.Params {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// Param returns the parameter called name.
func (t Tool) Param(name string) (Param, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

type propertySchema struct {
	Description string          `json:"description"`
	Type        json.RawMessage `json:"type"`
}

// ParseParams extracts the parameters of an input schema. Property order is
// taken from the schema text, so the decoder walks tokens instead of
// unmarshalling into a map. An empty or null schema has no parameters.
// Property values that are not objects become parameters of unknown kind.
func ParseParams(inputSchema json.RawMessage) ([]Param, error) {
	trimmed := bytes.TrimSpace(inputSchema)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, errors.Wrap(err, "input schema")
	}

	var (
		params   []Param
		required []string
	)
	for dec.More() {
		key, err := objectKey(dec)
		if err != nil {
			return nil, errors.Wrap(err, "input schema")
		}
		switch key {
		case "properties":
			params, err = parseProperties(dec)
			if err != nil {
				return nil, errors.Wrap(err, "properties")
			}
		case "required":
			if err := dec.Decode(&required); err != nil {
				return nil, errors.Wrap(err, "required")
			}
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, errors.Wrapf(err, "input schema %q", key)
			}
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, errors.Wrap(err, "input schema")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("input schema: trailing data")
	}

	req := make(map[string]bool, len(required))
	for _, name := range required {
		req[name] = true
	}
	for i := range params {
		params[i].Required = req[params[i].Name]
	}
	return params, nil
}

func parseProperties(dec *json.Decoder) ([]Param, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var params []Param
	for dec.More() {
		name, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.Wrapf(err, "property %q", name)
		}

		p := Param{Name: name}
		var prop propertySchema
		if json.Unmarshal(raw, &prop) == nil {
			p.Description = prop.Description
			p.Kind = kindFromType(prop.Type)
		}
		params = append(params, p)
	}
	return params, expectDelim(dec, '}')
}

// kindFromType handles both "type":"x" and "type":["x","null"].
func kindFromType(raw json.RawMessage) Kind {
	if len(raw) == 0 {
		return KindUnknown
	}
	var single string
	if json.Unmarshal(raw, &single) == nil {
		return kindOf(single)
	}
	var many []string
	if json.Unmarshal(raw, &many) == nil {
		for _, typ := range many {
			if typ != "null" {
				return kindOf(typ)
			}
		}
	}
	return KindUnknown
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.Newf("expected %q, got %v", want, tok)
	}
	return nil
}

func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", errors.Newf("expected object key, got %v", tok)
	}
	return key, nil
}
