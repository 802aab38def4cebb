package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
)

// Map is an ordered parameter mapping. It marshals to a JSON object with keys
// in insertion order. The zero value is ready to use.
type Map struct {
	keys   []string
	values map[string]any
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{}
}

// Set stores value under key. Re-setting a key keeps its original position.
func (m *Map) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	if m == nil || m.values == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Len returns the number of parameters.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// ToMap returns an unordered copy.
func (m *Map) ToMap() map[string]any {
	out := make(map[string]any, m.Len())
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		out[k] = m.values[k]
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if m != nil {
		for i, k := range m.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(m.values[k])
			if err != nil {
				return nil, errors.Wrapf(err, "parameter %q", k)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders the map for display, e.g. "a=1 (int), b=true (bool)".
func (m *Map) String() string {
	if m.Len() == 0 {
		return "(no parameters)"
	}
	parts := make([]string, 0, m.Len())
	for _, k := range m.keys {
		v := m.values[k]
		parts = append(parts, fmt.Sprintf("%s=%s (%s)", k, display(v), TypeName(v)))
	}
	return strings.Join(parts, ", ")
}

func display(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case *big.Int:
		return v.String()
	case bool, int, int64, float64, json.Number:
		return fmt.Sprint(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// TypeName names the coerced type of a parameter value.
func TypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case int:
		return "int"
	case int64:
		return "int64"
	case *big.Int:
		return "bigint"
	case float64:
		return "float"
	case json.Number:
		return "number"
	case nil:
		return "null"
	default:
		return "json"
	}
}
