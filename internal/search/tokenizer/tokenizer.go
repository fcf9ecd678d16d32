// Package tokenizer provides text normalisation for the search engine. It
// lower-cases input, strips diacritics so "Berço" and "berco" compare equal,
// and splits on non-alphanumeric boundaries. Tokens as short as one rune are
// kept: edge queries prefix-match against SKU fragments and short words.
package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s and removes diacritic marks. It is the single
// normalisation applied to both indexed text and query terms, so the two
// always compare in the same space.
func Fold(s string) string {
	s = strings.ToLower(s)
	// The transformer carries state across Transform calls, so a fresh one
	// is built per invocation rather than shared.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// Tokenize folds text and splits it into tokens on any rune that is not a
// letter or digit. Order is preserved and no stop-words are removed.
func Tokenize(text string) []string {
	folded := Fold(text)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Terms folds a query and splits it into the individual words a document
// field must prefix-match. Whitespace-only input yields nil.
func Terms(query string) []string {
	return Tokenize(strings.TrimSpace(query))
}
