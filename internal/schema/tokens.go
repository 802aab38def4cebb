package schema

import (
	"github.com/tiktoken-go/tokenizer"
)

// EstimateTokens approximates how many model tokens a tool definition costs
// when listed to an LLM: its name, description and input schema, counted
// with the cl100k encoding. Falls back to len/4 if the codec is unavailable.
func EstimateTokens(t Tool) int {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return estimateFallback(t)
	}

	total := countOrZero(codec, t.RawName)
	total += countOrZero(codec, t.Description)
	if len(t.InputSchema) > 0 {
		total += countOrZero(codec, string(t.InputSchema))
	}
	return total
}

func countOrZero(codec tokenizer.Codec, text string) int {
	if text == "" {
		return 0
	}
	tokens, _, err := codec.Encode(text)
	if err != nil {
		return len(text) / 4
	}
	return len(tokens)
}

func estimateFallback(t Tool) int {
	return (len(t.RawName) + len(t.Description) + len(t.InputSchema)) / 4
}
