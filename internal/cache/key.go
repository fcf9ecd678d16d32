package cache

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/tokenizer"
)

const keyPrefix = "search:q:"

// KeyParams are every request dimension that affects the response. Two
// logically identical requests must always collide on one key; two
// different requests never may.
type KeyParams struct {
	Term      string
	Page      int
	Limit     int
	Category  string
	MinPrice  *float64
	MaxPrice  *float64
	Sort      string
	Variation string
}

// Key derives a deterministic cache key. The term and category are folded
// and trimmed so "Berço" and " berço " normalize identically, parameters are
// serialised in a fixed order, and the category keeps a plaintext segment so
// catalog-change invalidation can target it with a glob.
func Key(p KeyParams) string {
	normalized := strings.Join([]string{
		"term=" + tokenizer.Fold(strings.TrimSpace(p.Term)),
		"page=" + strconv.Itoa(p.Page),
		"limit=" + strconv.Itoa(p.Limit),
		"category=" + tokenizer.Fold(strings.TrimSpace(p.Category)),
		"min=" + formatPrice(p.MinPrice),
		"max=" + formatPrice(p.MaxPrice),
		"sort=" + p.Sort,
		"var=" + p.Variation,
	}, "|")
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s%s:%x", keyPrefix, CategorySlug(p.Category), hash[:16])
}

// CategorySlug reduces a category to the key segment used for scoped
// invalidation. Requests without a category filter share the "any" segment.
func CategorySlug(category string) string {
	folded := tokenizer.Fold(strings.TrimSpace(category))
	if folded == "" {
		return "any"
	}
	var b strings.Builder
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return b.String()
}

// CategoryPattern returns the glob matching every cached key in a category
// segment.
func CategoryPattern(category string) string {
	return keyPrefix + CategorySlug(category) + ":*"
}

func formatPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}
