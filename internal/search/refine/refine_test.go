package refine

import (
	"math"
	"reflect"
	"testing"

	"github.com/tigraodegente/ecomm-gdg-sub002/internal/catalog"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/scorer"
)

func candidates() []scorer.Candidate {
	return []scorer.Candidate{
		{Doc: catalog.Document{ID: "1", Name: "Berço Montessoriano", Category: "Berços", Vendor: "Tigrão", Price: 899.90}, NormalizedScore: 10},
		{Doc: catalog.Document{ID: "2", Name: "Kit Berço", Category: "Berços", Vendor: "Grão de Gente", Price: 199.90}, NormalizedScore: 5.67},
		{Doc: catalog.Document{ID: "3", Name: "Lençol Avulso", Category: "Enxoval", Vendor: "Grão de Gente", Price: 49.90}, NormalizedScore: 3.2},
		{Doc: catalog.Document{ID: "4", Name: "Almofada Amamentação", Category: "Enxoval", Vendor: "Tigrão", Price: 129.90}, NormalizedScore: 2.1},
		{Doc: catalog.Document{ID: "5", Name: "Cortina Infantil", Category: "Decoração", Vendor: "Tigrão", Price: 89.90}, NormalizedScore: 1.5},
	}
}

// TestApplyPriceAscScenario covers the storefront's canonical low-to-high
// ordering: cheaper kit before the more relevant but pricier crib.
func TestApplyPriceAscScenario(t *testing.T) {
	cands := []scorer.Candidate{
		{Doc: catalog.Document{ID: "1", Name: "Berço Montessoriano", Category: "Berços", Price: 899.90}, NormalizedScore: 10},
		{Doc: catalog.Document{ID: "2", Name: "Kit Berço", Category: "Berços", Price: 199.90}, NormalizedScore: 5.5},
	}
	r := New("pt-BR", 100)
	got := r.Apply(cands, Params{Sort: SortPriceAsc})

	if len(got.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(got.Items))
	}
	if got.Items[0].Doc.ID != "2" || got.Items[1].Doc.ID != "1" {
		t.Fatalf("order = [%s %s], want [2 1]", got.Items[0].Doc.ID, got.Items[1].Doc.ID)
	}
	for _, it := range got.Items {
		if it.NormalizedScore <= 0 {
			t.Fatalf("item %s lost its score", it.Doc.ID)
		}
	}
	if !reflect.DeepEqual(got.Filters.Categories, []string{"Berços"}) {
		t.Fatalf("categories = %v, want [Berços]", got.Filters.Categories)
	}
	if got.Filters.PriceRange.Min != 199.90 || got.Filters.PriceRange.Max != 899.90 {
		t.Fatalf("price range = %+v, want {199.90 899.90}", got.Filters.PriceRange)
	}
}

// TestPaginationInvariants checks totalPages = ceil(total/limit) and the
// next/prev flags across page positions.
func TestPaginationInvariants(t *testing.T) {
	r := New("pt-BR", 100)
	tests := []struct {
		name    string
		page    int
		limit   int
		items   int
		total   int
		pages   int
		hasNext bool
		hasPrev bool
	}{
		{"first of three", 1, 2, 2, 5, 3, true, false},
		{"middle", 2, 2, 2, 5, 3, true, true},
		{"last partial", 3, 2, 1, 5, 3, false, true},
		{"beyond last", 9, 2, 0, 5, 3, false, true},
		{"single page", 1, 50, 5, 5, 1, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Apply(candidates(), Params{Page: tt.page, Limit: tt.limit})
			p := got.Pagination
			if len(got.Items) != tt.items {
				t.Errorf("items = %d, want %d", len(got.Items), tt.items)
			}
			if p.Total != tt.total || p.TotalPages != tt.pages {
				t.Errorf("total/pages = %d/%d, want %d/%d", p.Total, p.TotalPages, tt.total, tt.pages)
			}
			if want := int(math.Ceil(float64(p.Total) / float64(p.Limit))); p.TotalPages != want {
				t.Errorf("totalPages = %d, want ceil = %d", p.TotalPages, want)
			}
			if p.HasNextPage != tt.hasNext || p.HasPrevPage != tt.hasPrev {
				t.Errorf("next/prev = %v/%v, want %v/%v", p.HasNextPage, p.HasPrevPage, tt.hasNext, tt.hasPrev)
			}
		})
	}
}

func TestApplyClamps(t *testing.T) {
	r := New("pt-BR", 100)
	got := r.Apply(candidates(), Params{Page: -3, Limit: 0})
	if got.Pagination.Page != 1 {
		t.Errorf("page = %d, want clamped to 1", got.Pagination.Page)
	}
	if got.Pagination.Limit != 20 {
		t.Errorf("limit = %d, want default 20", got.Pagination.Limit)
	}

	got = r.Apply(candidates(), Params{Limit: 5000})
	if got.Pagination.Limit != 100 {
		t.Errorf("limit = %d, want max 100", got.Pagination.Limit)
	}
}

func TestFilterCategory(t *testing.T) {
	r := New("pt-BR", 100)
	// Folded comparison: unaccented lowercase input matches "Berços".
	got := r.Apply(candidates(), Params{Category: " bercos "})
	if got.Pagination.Total != 2 {
		t.Fatalf("total = %d, want 2", got.Pagination.Total)
	}
	for _, it := range got.Items {
		if it.Doc.Category != "Berços" {
			t.Fatalf("unexpected category %q", it.Doc.Category)
		}
	}
}

func TestFilterPriceBoundsInclusive(t *testing.T) {
	r := New("pt-BR", 100)
	min, max := 89.90, 199.90
	got := r.Apply(candidates(), Params{MinPrice: &min, MaxPrice: &max})
	want := map[string]bool{"2": true, "4": true, "5": true}
	if got.Pagination.Total != len(want) {
		t.Fatalf("total = %d, want %d", got.Pagination.Total, len(want))
	}
	for _, it := range got.Items {
		if !want[it.Doc.ID] {
			t.Fatalf("unexpected item %s at price %v", it.Doc.ID, it.Doc.Price)
		}
	}
}

// TestFacetsBeforePagination verifies facets cover the whole filtered set,
// not just the returned page.
func TestFacetsBeforePagination(t *testing.T) {
	r := New("pt-BR", 100)
	got := r.Apply(candidates(), Params{Page: 1, Limit: 1})
	if len(got.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(got.Items))
	}
	if !reflect.DeepEqual(got.Filters.Categories, []string{"Berços", "Decoração", "Enxoval"}) {
		t.Fatalf("categories = %v", got.Filters.Categories)
	}
	if !reflect.DeepEqual(got.Filters.Vendors, []string{"Grão de Gente", "Tigrão"}) {
		t.Fatalf("vendors = %v", got.Filters.Vendors)
	}
	if got.Filters.PriceRange.Min != 49.90 || got.Filters.PriceRange.Max != 899.90 {
		t.Fatalf("price range = %+v", got.Filters.PriceRange)
	}
}

func TestSortVariants(t *testing.T) {
	r := New("pt-BR", 100)
	tests := []struct {
		sort  string
		first string
		last  string
	}{
		{SortPriceAsc, "3", "1"},
		{SortPriceDesc, "1", "3"},
		{SortNameAsc, "4", "3"},
		{SortNameDesc, "3", "4"},
		{SortRelevance, "1", "5"},
		{"bogus", "1", "5"},
	}
	for _, tt := range tests {
		t.Run(tt.sort, func(t *testing.T) {
			got := r.Apply(candidates(), Params{Sort: tt.sort})
			n := len(got.Items)
			if n == 0 {
				t.Fatal("no items")
			}
			if got.Items[0].Doc.ID != tt.first || got.Items[n-1].Doc.ID != tt.last {
				t.Errorf("first/last = %s/%s, want %s/%s", got.Items[0].Doc.ID, got.Items[n-1].Doc.ID, tt.first, tt.last)
			}
		})
	}
}

func TestNormalizeSort(t *testing.T) {
	if NormalizeSort("price_asc") != SortPriceAsc {
		t.Error("known key must pass through")
	}
	if NormalizeSort("") != SortRelevance || NormalizeSort("wat") != SortRelevance {
		t.Error("unknown keys must fall back to relevance")
	}
}

func TestApplyEmptyCandidates(t *testing.T) {
	r := New("pt-BR", 100)
	got := r.Apply(nil, Params{})
	if len(got.Items) != 0 || got.Pagination.Total != 0 || got.Pagination.TotalPages != 0 {
		t.Fatalf("empty input produced %+v", got.Pagination)
	}
	if got.Pagination.HasNextPage || got.Pagination.HasPrevPage {
		t.Fatal("empty result cannot have next/prev pages")
	}
	if got.Filters.Categories == nil || got.Filters.Vendors == nil {
		t.Fatal("facet slices must be non-nil for JSON encoding")
	}
}
