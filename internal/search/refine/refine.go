// Package refine narrows and orders scored candidates per request
// parameters: category and price filtering, sorting, pagination, and facet
// computation for the storefront filter UI.
package refine

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/scorer"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/tokenizer"
)

// Sort keys accepted by the query API. Unknown values fall back to
// SortRelevance.
const (
	SortRelevance = "relevance"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNameAsc   = "name_asc"
	SortNameDesc  = "name_desc"
)

// Params are the narrowing and ordering knobs of one request. Malformed
// values are clamped or ignored, never failed.
type Params struct {
	Category string
	MinPrice *float64
	MaxPrice *float64
	Sort     string
	Page     int
	Limit    int
}

// Pagination describes the returned page relative to the filtered total.
type Pagination struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// PriceRange is the min/max price facet.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// AvailableFilters are the facets computed from the filtered candidate set
// before pagination, so the UI can offer them even though only one page is
// returned.
type AvailableFilters struct {
	Categories []string   `json:"categories"`
	PriceRange PriceRange `json:"priceRange"`
	Vendors    []string   `json:"vendors"`
}

// Result is the refined slice of candidates plus pagination and facets.
type Result struct {
	Items      []scorer.Candidate
	Pagination Pagination
	Filters    AvailableFilters
}

// Refiner applies Params to candidate sets with locale-aware name collation.
type Refiner struct {
	locale   language.Tag
	maxLimit int
}

// New creates a Refiner. An unparseable locale falls back to the und tag;
// maxLimit bounds the page size to prevent abuse.
func New(locale string, maxLimit int) *Refiner {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Und
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &Refiner{locale: tag, maxLimit: maxLimit}
}

// Apply filters, sorts, and paginates candidates. Facets are computed on the
// filtered set before pagination.
func (r *Refiner) Apply(cands []scorer.Candidate, p Params) Result {
	filtered := filter(cands, p)
	facets := facets(filtered)
	r.sortCandidates(filtered, p.Sort)

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > r.maxLimit {
		limit = r.maxLimit
	}
	page := p.Page
	if page < 1 {
		page = 1
	}

	total := len(filtered)
	totalPages := (total + limit - 1) / limit

	start := (page - 1) * limit
	var items []scorer.Candidate
	if start < total {
		end := start + limit
		if end > total {
			end = total
		}
		items = filtered[start:end]
	} else {
		items = []scorer.Candidate{}
	}

	return Result{
		Items: items,
		Pagination: Pagination{
			Page:        page,
			Limit:       limit,
			Total:       total,
			TotalPages:  totalPages,
			HasNextPage: page < totalPages,
			HasPrevPage: page > 1 && total > 0,
		},
		Filters: facets,
	}
}

// filter is a pure post-hoc narrowing: category match is case-insensitive
// exact (in folded space), price bounds inclusive.
func filter(cands []scorer.Candidate, p Params) []scorer.Candidate {
	wantCategory := tokenizer.Fold(strings.TrimSpace(p.Category))
	out := make([]scorer.Candidate, 0, len(cands))
	for _, c := range cands {
		if wantCategory != "" && tokenizer.Fold(c.Doc.Category) != wantCategory {
			continue
		}
		if p.MinPrice != nil && c.Doc.Price < *p.MinPrice {
			continue
		}
		if p.MaxPrice != nil && c.Doc.Price > *p.MaxPrice {
			continue
		}
		out = append(out, c)
	}
	return out
}

func facets(cands []scorer.Candidate) AvailableFilters {
	f := AvailableFilters{
		Categories: []string{},
		Vendors:    []string{},
	}
	catSeen := make(map[string]struct{})
	vendorSeen := make(map[string]struct{})
	for i, c := range cands {
		price := c.Doc.Price
		if i == 0 {
			f.PriceRange = PriceRange{Min: price, Max: price}
		} else {
			if price < f.PriceRange.Min {
				f.PriceRange.Min = price
			}
			if price > f.PriceRange.Max {
				f.PriceRange.Max = price
			}
		}
		if cat := c.Doc.Category; cat != "" {
			if _, dup := catSeen[cat]; !dup {
				catSeen[cat] = struct{}{}
				f.Categories = append(f.Categories, cat)
			}
		}
		if v := c.Doc.Vendor; v != "" {
			if _, dup := vendorSeen[v]; !dup {
				vendorSeen[v] = struct{}{}
				f.Vendors = append(f.Vendors, v)
			}
		}
	}
	sort.Strings(f.Categories)
	sort.Strings(f.Vendors)
	return f
}

func (r *Refiner) sortCandidates(cands []scorer.Candidate, key string) {
	switch key {
	case SortPriceAsc:
		sort.SliceStable(cands, func(i, j int) bool {
			if cands[i].Doc.Price != cands[j].Doc.Price {
				return cands[i].Doc.Price < cands[j].Doc.Price
			}
			return cands[i].Doc.ID < cands[j].Doc.ID
		})
	case SortPriceDesc:
		sort.SliceStable(cands, func(i, j int) bool {
			if cands[i].Doc.Price != cands[j].Doc.Price {
				return cands[i].Doc.Price > cands[j].Doc.Price
			}
			return cands[i].Doc.ID < cands[j].Doc.ID
		})
	case SortNameAsc:
		r.sortByName(cands, false)
	case SortNameDesc:
		r.sortByName(cands, true)
	default:
		// Relevance: scored order. Candidates arrive ordered from the
		// scorer, but filtered subsets are re-sorted to keep the
		// invariant explicit.
		sort.SliceStable(cands, func(i, j int) bool {
			if cands[i].NormalizedScore != cands[j].NormalizedScore {
				return cands[i].NormalizedScore > cands[j].NormalizedScore
			}
			return cands[i].Doc.ID < cands[j].Doc.ID
		})
	}
}

func (r *Refiner) sortByName(cands []scorer.Candidate, desc bool) {
	// A fresh collator per sort: collators carry internal buffers and are
	// not safe for concurrent use across requests.
	col := collate.New(r.locale)
	sort.SliceStable(cands, func(i, j int) bool {
		cmp := col.CompareString(cands[i].Doc.Name, cands[j].Doc.Name)
		if cmp == 0 {
			return cands[i].Doc.ID < cands[j].Doc.ID
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

// NormalizeSort maps unknown sort values to SortRelevance.
func NormalizeSort(key string) string {
	switch key {
	case SortPriceAsc, SortPriceDesc, SortNameAsc, SortNameDesc:
		return key
	default:
		return SortRelevance
	}
}
