// Package catalog defines the product document model consumed by the search
// index and the sources that supply it.
package catalog

import (
	"fmt"
	"strings"
)

// Document is a single indexed product record. SearchableText is a
// precomputed concatenation of the textual fields, produced once at
// ingestion and never recomputed per query.
type Document struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	Vendor         string   `json:"vendor"`
	Price          float64  `json:"price"`
	CompareAtPrice float64  `json:"compareAtPrice"`
	Tags           []string `json:"tags,omitempty"`
	SKU            string   `json:"sku"`
	Image          string   `json:"image,omitempty"`
	Slug           string   `json:"slug,omitempty"`
	SearchableText string   `json:"searchableText"`
}

// Normalize fills in SearchableText when the source did not precompute it.
func (d *Document) Normalize() {
	if d.SearchableText == "" {
		d.SearchableText = BuildSearchableText(*d)
	}
}

// BuildSearchableText concatenates the document's textual fields into the
// single blob the index tokenizes for full-text matching.
func BuildSearchableText(d Document) string {
	parts := make([]string, 0, 6)
	for _, p := range []string{d.Name, d.Description, d.Category, d.Vendor, strings.Join(d.Tags, " "), d.SKU} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Validate rejects documents that cannot be indexed.
func (d Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("document id is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("document %s: name is required", d.ID)
	}
	return nil
}
