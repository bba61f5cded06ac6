// Package tokenizer estimates model token counts without a model-specific
// vocabulary.
package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// CountTokens estimates tokens as the larger of a word-based and a
// character-based guess (about 4 characters per token for English).
func CountTokens(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	byWords := len(strings.Fields(text)) * 4 / 3
	byChars := utf8.RuneCountInString(text) / 4
	return max(byWords, byChars, 1)
}

// CountAll sums CountTokens over texts.
func CountAll(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += CountTokens(t)
	}
	return n
}
