// Package tokenizer normalises free text into the token stream shared by
// the index and the ranker. It lower-cases input, extracts maximal runs of
// ASCII letters, digits, and underscore, and drops single-character tokens.
//
// Query and document text pass through the exact same normalisation, so a
// token produced from a question is guaranteed to be directly comparable
// with the index's term tables.
package tokenizer

import "strings"

// Tokenize breaks text into lowercase tokens. It is deterministic, never
// fails, and returns an empty slice for text with no usable tokens.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !isTokenRune(r)
	})
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) <= 1 {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

func isTokenRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_':
		return true
	}
	return false
}
