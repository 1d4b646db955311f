package tokens

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates model token counts for budgeting and rate limiting.
// It uses the model's real tiktoken encoding when one can be loaded and a
// ~4-characters-per-token heuristic otherwise. Counting is advisory and
// never fails.
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// NewCounter builds a counter for the given model identifier. The encoding
// is resolved once; lookup failures degrade to the heuristic silently.
func NewCounter(model string) *Counter {
	c := &Counter{}

	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		c.encoding = enc
		return c
	}

	// Deployment names rarely match tiktoken's model table exactly, so fall
	// back to the encoding family before giving up on real tokenization.
	name := "cl100k_base"
	lower := strings.ToLower(model)
	if strings.Contains(lower, "gpt-4o") || strings.Contains(lower, "o1") ||
		strings.Contains(lower, "o3") || strings.Contains(lower, "gpt-5") {
		name = "o200k_base"
	}
	if enc, err := tiktoken.GetEncoding(name); err == nil {
		c.encoding = enc
	}

	return c
}

// Count returns the estimated token count of text. Empty input counts 0.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.encoding != nil {
		return len(c.encoding.Encode(text, nil, nil))
	}
	return approximate(text)
}

// approximate uses the ~4 characters per token heuristic, which is a
// reasonable fit for English text with GPT-family tokenizers.
func approximate(text string) int {
	return (len(text) + 3) / 4
}
