package provider

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "   \n\t", 0},
		{"single rune", "x", 1},
		{"two words", "hello world", 2},
		{"long unbroken run", strings.Repeat("a", 40), 10},
		{"word count dominates", "one two three four five six", 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	// Exact and heuristic counting agree on this input, so the assertion
	// holds whether or not the encoding data is available.
	assert.Equal(t, 2, CountTokens("hello world"))
	assert.Positive(t, CountTokens("注意力机制"))
}

func TestTruncateTokens(t *testing.T) {
	long := strings.Repeat("alpha beta gamma delta ", 50)

	t.Run("non-positive limit returns input", func(t *testing.T) {
		assert.Equal(t, long, TruncateTokens(long, 0))
		assert.Equal(t, long, TruncateTokens(long, -1))
	})

	t.Run("short text untouched", func(t *testing.T) {
		assert.Equal(t, "hello", TruncateTokens("hello", 1000))
	})

	t.Run("long text shortened", func(t *testing.T) {
		got := TruncateTokens(long, 10)
		assert.NotEmpty(t, got)
		assert.Less(t, len(got), len(long))
	})
}
