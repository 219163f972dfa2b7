// Package payee normalizes merchant names so that variants of the same
// payee ("Starbucks Inc.", "THE STARBUCKS", "starbucks") share one
// memory key.
package payee

import (
	"strings"
	"unicode"
)

var corporateSuffixes = map[string]bool{
	"inc":  true,
	"llc":  true,
	"ltd":  true,
	"corp": true,
	"co":   true,
}

var leadingArticles = map[string]bool{
	"the": true,
	"a":   true,
	"an":  true,
}

// Normalize lowercases the name, strips punctuation, drops leading
// articles and trailing corporate suffixes, and collapses whitespace.
// It returns "" for names with no alphanumeric content.
func Normalize(raw string) string {
	lowered := strings.ToLower(raw)
	var b strings.Builder
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for len(words) > 0 && leadingArticles[words[0]] {
		words = words[1:]
	}
	for len(words) > 1 && corporateSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}
