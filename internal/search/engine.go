// Package search ties the query pipeline together: scorer, refine, and
// suggestion generation, producing the response envelope served by the HTTP
// boundary.
package search

import (
	"context"
	"log/slog"

	"github.com/tigraodegente/ecomm-gdg-sub002/internal/catalog"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/index"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/refine"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/scorer"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/suggest"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/metrics"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/tracing"
)

// Request carries the parsed query parameters.
type Request struct {
	Term     string
	Page     int
	Limit    int
	Category string
	MinPrice *float64
	MaxPrice *float64
	Sort     string
}

// Product is one search hit as exposed by the query API.
type Product struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Price        float64 `json:"price"`
	ComparePrice float64 `json:"comparePrice"`
	Image        string  `json:"image"`
	Slug         string  `json:"slug"`
	Category     string  `json:"category"`
	VendorName   string  `json:"vendorName"`
	Score        float64 `json:"score"`
}

// AppliedFilters echoes the parameters that produced this response.
type AppliedFilters struct {
	Term     string   `json:"term"`
	Category string   `json:"category,omitempty"`
	MinPrice *float64 `json:"minPrice,omitempty"`
	MaxPrice *float64 `json:"maxPrice,omitempty"`
	Sort     string   `json:"sort"`
}

// Response is the query API envelope.
type Response struct {
	Success        bool                    `json:"success"`
	Products       []Product               `json:"products"`
	Pagination     refine.Pagination       `json:"pagination"`
	Filters        refine.AvailableFilters `json:"filters"`
	Suggestions    []string                `json:"suggestions"`
	AppliedFilters AppliedFilters          `json:"appliedFilters"`
}

// IndexProvider yields the current live index. The lifecycle manager
// implements it with an atomically-swapped reference.
type IndexProvider interface {
	Current(ctx context.Context) (*index.Index, error)
}

// Engine runs the full query pipeline against the live index.
type Engine struct {
	indexes   IndexProvider
	scorer    *scorer.Scorer
	refiner   *refine.Refiner
	suggester *suggest.Generator
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewEngine(indexes IndexProvider, sc *scorer.Scorer, rf *refine.Refiner, sg *suggest.Generator, m *metrics.Metrics) *Engine {
	return &Engine{
		indexes:   indexes,
		scorer:    sc,
		refiner:   rf,
		suggester: sg,
		metrics:   m,
		logger:    slog.Default().With("component", "search-engine"),
	}
}

// Query scores, refines, and decorates one search request. It returns the
// failure envelope together with the error when no index is available; the
// boundary serves the envelope either way.
func (e *Engine) Query(ctx context.Context, req Request) (*Response, error) {
	idx, err := e.indexes.Current(ctx)
	if err != nil {
		e.logger.Warn("query failed, no live index", "term", req.Term, "error", err)
		return FailureResponse(req), err
	}

	spanCtx, span := tracing.StartChildSpan(ctx, "scorer.search")
	cands := e.scorer.Search(idx, req.Term, scorer.Options{})
	span.SetAttr("candidates", len(cands))
	span.End()

	_, span = tracing.StartChildSpan(spanCtx, "refine.apply")
	result := e.refiner.Apply(cands, refine.Params{
		Category: req.Category,
		MinPrice: req.MinPrice,
		MaxPrice: req.MaxPrice,
		Sort:     refine.NormalizeSort(req.Sort),
		Page:     req.Page,
		Limit:    req.Limit,
	})
	span.End()

	suggestions := e.suggester.Suggest(req.Term, result.Pagination.Total, cands)
	if suggestions == nil {
		suggestions = []string{}
	}

	if e.metrics != nil {
		e.metrics.SearchResultsCount.Observe(float64(result.Pagination.Total))
		if len(suggestions) > 0 {
			e.metrics.SuggestionsTotal.Inc()
		}
	}

	products := make([]Product, 0, len(result.Items))
	for _, c := range result.Items {
		products = append(products, Product{
			ID:           c.Doc.ID,
			Name:         c.Doc.Name,
			Description:  c.Doc.Description,
			Price:        c.Doc.Price,
			ComparePrice: c.Doc.CompareAtPrice,
			Image:        c.Doc.Image,
			Slug:         c.Doc.Slug,
			Category:     c.Doc.Category,
			VendorName:   c.Doc.Vendor,
			Score:        c.NormalizedScore,
		})
	}

	return &Response{
		Success:     true,
		Products:    products,
		Pagination:  result.Pagination,
		Filters:     result.Filters,
		Suggestions: suggestions,
		AppliedFilters: AppliedFilters{
			Term:     req.Term,
			Category: req.Category,
			MinPrice: req.MinPrice,
			MaxPrice: req.MaxPrice,
			Sort:     refine.NormalizeSort(req.Sort),
		},
	}, nil
}

// Export returns every indexed document unscored, in id order. This is the
// only caller of the scorer's include-all mode.
func (e *Engine) Export(ctx context.Context) ([]catalog.Document, error) {
	idx, err := e.indexes.Current(ctx)
	if err != nil {
		return nil, err
	}
	cands := e.scorer.Search(idx, "", scorer.Options{IncludeAll: true})
	docs := make([]catalog.Document, 0, len(cands))
	for _, c := range cands {
		docs = append(docs, c.Doc)
	}
	return docs, nil
}

// FailureResponse is the success:false envelope served when the entire
// pipeline fails irrecoverably: empty products and zero-valued pagination.
func FailureResponse(req Request) *Response {
	return &Response{
		Success:     false,
		Products:    []Product{},
		Suggestions: []string{},
		Filters: refine.AvailableFilters{
			Categories: []string{},
			Vendors:    []string{},
		},
		AppliedFilters: AppliedFilters{
			Term:     req.Term,
			Category: req.Category,
			Sort:     refine.NormalizeSort(req.Sort),
		},
	}
}
