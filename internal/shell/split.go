package shell

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Token is one word of a command line. Raw keeps the quotes as typed, along
// with backslash escapes inside double quotes; Value has all of them removed.
type Token struct {
	Raw   string
	Value string
}

// splitLine splits a command line on unquoted whitespace. Single and double
// quotes group words, a backslash escapes the next character, and spaces
// inside an unquoted {...} or [...] do not split, so a JSON object can be
// typed without quoting it.
func splitLine(line string) ([]Token, error) {
	var (
		tokens    []Token
		raw       strings.Builder
		value     strings.Builder
		inToken   bool
		quoteChar rune
		escaped   bool
		depth     int
	)

	flush := func() {
		if inToken {
			tokens = append(tokens, Token{Raw: raw.String(), Value: value.String()})
		}
		raw.Reset()
		value.Reset()
		inToken = false
	}

	for _, r := range line {
		if escaped {
			raw.WriteRune(r)
			value.WriteRune(r)
			escaped = false
			continue
		}

		switch {
		case r == '\\' && quoteChar != '\'':
			// Outside quotes the escape is resolved in Raw too; inside double
			// quotes it is kept so quote stripping sees the original text.
			if quoteChar != 0 {
				raw.WriteRune(r)
			}
			inToken = true
			escaped = true
		case quoteChar != 0:
			raw.WriteRune(r)
			if r == quoteChar {
				quoteChar = 0
			} else {
				value.WriteRune(r)
			}
		case r == '"' || r == '\'':
			raw.WriteRune(r)
			inToken = true
			quoteChar = r
		case (r == ' ' || r == '\t') && depth == 0:
			flush()
		default:
			switch r {
			case '{', '[':
				depth++
			case '}', ']':
				if depth > 0 {
					depth--
				}
			}
			raw.WriteRune(r)
			value.WriteRune(r)
			inToken = true
		}
	}

	if quoteChar != 0 {
		return nil, errors.WithHint(
			errors.Newf("unterminated %c quote", quoteChar),
			`close the quote, or escape it with a backslash`)
	}
	if escaped {
		return nil, errors.New("line ends with a bare backslash")
	}
	flush()
	return tokens, nil
}

func values(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Value
	}
	return out
}

func raws(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Raw
	}
	return out
}
