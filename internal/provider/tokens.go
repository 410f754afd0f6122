package provider

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// tokenEncoding lazily initializes the cl100k_base encoding. It returns nil
// when the encoding data cannot be loaded, in which case callers fall back
// to the heuristic estimate.
func tokenEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// CountTokens returns the cl100k_base token count for text, falling back to
// EstimateTokens when the encoding is unavailable.
func CountTokens(text string) int {
	if enc := tokenEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return EstimateTokens(text)
}

// EstimateTokens approximates a token count as max(runes/4, words). Good
// enough for segment budgeting when the exact count is not worth the cost.
func EstimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	n := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); words > n {
		n = words
	}
	return max(n, 1)
}

// TruncateTokens cuts text down to at most maxTokens tokens. A non-positive
// limit returns the text unchanged.
func TruncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return text
	}
	if enc := tokenEncoding(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= maxTokens {
			return text
		}
		return enc.Decode(tokens[:maxTokens])
	}
	runes := []rune(text)
	if len(runes) <= maxTokens*4 {
		return text
	}
	return string(runes[:maxTokens*4])
}
