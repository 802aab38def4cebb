// Package params turns command-line parameter text into the ordered argument
// object sent with a tool call.
//
// Two forms are accepted and detected automatically: a single JSON object
// token, or any number of key=value tokens whose values are type-inferred.
package params

import (
	"encoding/json"
	"io"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	integerPattern = regexp.MustCompile(`^-?\d+$`)
	decimalPattern = regexp.MustCompile(`^-?\d*\.\d+([eE][+-]?\d+)?$`)
)

// Parse builds a parameter map from tokens. No tokens yields an empty map.
func Parse(tokens []string) (*Map, error) {
	if len(tokens) == 0 {
		return NewMap(), nil
	}

	if len(tokens) == 1 && looksLikeJSON(tokens[0]) {
		return parseJSON(strings.TrimSpace(tokens[0]))
	}

	m := NewMap()
	for _, token := range tokens {
		if startsJSON(token) || !strings.Contains(token, "=") {
			return nil, invalidf("cannot mix %q with key=value parameters", token)
		}
		key, value, _ := strings.Cut(token, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, invalidf("empty key in %q", token)
		}
		m.Set(key, Infer(strings.TrimSpace(value)))
	}
	return m, nil
}

// startsJSON reports whether token opens like a JSON object or array. Such
// tokens are never key=value pairs.
func startsJSON(token string) bool {
	t := strings.TrimSpace(token)
	return strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[")
}

func looksLikeJSON(token string) bool {
	t := strings.TrimSpace(token)
	if len(t) < 2 {
		return false
	}
	return (t[0] == '{' && t[len(t)-1] == '}') || (t[0] == '[' && t[len(t)-1] == ']')
}

// parseJSON decodes a JSON object keeping its key order. Numbers stay
// json.Number so large integers survive unchanged.
func parseJSON(text string) (*Map, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, invalidf("malformed JSON: %v", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, invalidf("JSON parameters must be an object, not an array")
	}

	m := NewMap()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, invalidf("malformed JSON: %v", err)
		}
		key, _ := tok.(string)
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, invalidf("malformed JSON value for %q: %v", key, err)
		}
		m.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, invalidf("malformed JSON: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, invalidf("trailing data after JSON object")
	}
	return m, nil
}

// Infer converts a raw value to the most specific type it spells. In order:
// a value wrapped in matching quotes is the inner text verbatim; true/false
// (any case) is a bool; an integer is an int when it fits 32 bits, then
// int64, then *big.Int; a decimal is a float64; anything else stays a string.
func Infer(value string) any {
	if n := len(value); n >= 2 && (value[0] == '"' || value[0] == '\'') && value[n-1] == value[0] {
		return value[1 : n-1]
	}

	if strings.EqualFold(value, "true") {
		return true
	}
	if strings.EqualFold(value, "false") {
		return false
	}

	if integerPattern.MatchString(value) {
		if n, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int(n)
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
		if n, ok := new(big.Int).SetString(value, 10); ok {
			return n
		}
	}

	if decimalPattern.MatchString(value) {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}

	return value
}

// Convert interprets an interactively entered value according to a schema
// kind ("string", "number", "boolean"; anything else falls back to Infer).
// Strings are kept verbatim.
func Convert(value, kind string) (any, error) {
	switch kind {
	case "string":
		return value, nil
	case "boolean":
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(value)))
		if err != nil {
			return nil, errors.Newf("%q is not a boolean", value)
		}
		return b, nil
	case "number":
		v := strings.TrimSpace(value)
		if integerPattern.MatchString(v) || decimalPattern.MatchString(v) {
			return Infer(v), nil
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, nil
		}
		return nil, errors.Newf("%q is not a number", value)
	default:
		return Infer(strings.TrimSpace(value)), nil
	}
}
