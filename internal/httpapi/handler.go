// Package httpapi exposes the query and index-refresh APIs over HTTP. Auth
// beyond the refresh bearer check is delegated to the boundary in front of
// this service.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tigraodegente/ecomm-gdg-sub002/internal/cache"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/catalog"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/lifecycle"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/popularity"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/refine"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/errors"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/logger"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/metrics"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/middleware"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/tracing"
)

// Handler serves the query, refresh, and cache management endpoints.
type Handler struct {
	engine       *search.Engine
	cache        *cache.Manager
	lifecycle    *lifecycle.Manager
	tracker      *popularity.Tracker
	metrics      *metrics.Metrics
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

func New(engine *search.Engine, cacheMgr *cache.Manager, lc *lifecycle.Manager, tracker *popularity.Tracker, m *metrics.Metrics, defaultLimit, maxLimit int) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &Handler{
		engine:       engine,
		cache:        cacheMgr,
		lifecycle:    lc,
		tracker:      tracker,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       slog.Default().With("component", "http-api"),
	}
}

// Search handles GET /api/v1/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "search", uuid.NewString())
	defer func() {
		span.End()
		span.Log()
	}()
	log := logger.FromContext(ctx)

	req := h.parseQuery(r)
	if strings.TrimSpace(req.Term) == "" {
		h.writeJSON(w, http.StatusOK, emptyResponse(req))
		return
	}

	key := cache.Key(cache.KeyParams{
		Term:      req.Term,
		Page:      req.Page,
		Limit:     req.Limit,
		Category:  req.Category,
		MinPrice:  req.MinPrice,
		MaxPrice:  req.MaxPrice,
		Sort:      refine.NormalizeSort(req.Sort),
		Variation: encodingVariation(r),
	})

	var payload []byte
	state := cache.StateBypass
	var err error
	if h.cache != nil {
		payload, state, err = h.cache.GetOrCompute(ctx, key, req.Term, func(cctx context.Context) ([]byte, error) {
			return h.compute(cctx, req)
		})
	} else {
		payload, err = h.compute(ctx, req)
	}

	latency := time.Since(start)
	if h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues(string(state)).Inc()
		h.metrics.SearchLatency.WithLabelValues(string(state)).Observe(latency.Seconds())
	}

	if err != nil {
		log.Warn("search pipeline failed", "term", req.Term, "error", err)
		h.writeJSON(w, http.StatusOK, search.FailureResponse(req))
		return
	}

	if h.tracker != nil {
		h.tracker.Record(popularity.QueryEvent{
			Term:       req.Term,
			CacheState: string(state),
			LatencyMs:  latency.Milliseconds(),
			RequestID:  middleware.GetRequestID(ctx),
			Timestamp:  time.Now().UTC(),
		})
	}

	log.Info("search completed",
		"term", req.Term,
		"cache_state", state,
		"latency_ms", latency.Milliseconds(),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

func (h *Handler) compute(ctx context.Context, req search.Request) ([]byte, error) {
	resp, err := h.engine.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

// refreshRequest is the index-refresh API body.
type refreshRequest struct {
	Incremental bool               `json:"incremental"`
	Documents   []catalog.Document `json:"documents"`
}

// Refresh handles POST /api/v1/index/refresh. The bearer check runs in
// middleware before this handler.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	indexed, err := h.lifecycle.Refresh(r.Context(), req.Incremental, req.Documents)
	if err != nil {
		h.logger.Error("index refresh failed", "incremental", req.Incremental, "error", err)
		h.writeJSON(w, errors.HTTPStatusCode(err), map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"documentsIndexed": indexed,
	})
}

// Export handles GET /api/v1/index/export, returning every indexed document.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	docs, err := h.engine.Export(r.Context())
	if err != nil {
		h.writeJSON(w, errors.HTTPStatusCode(err), map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"documents": docs,
	})
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":   hits,
		"misses": misses,
		"total":  hits + misses,
	})
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) parseQuery(r *http.Request) search.Request {
	q := r.URL.Query()
	req := search.Request{
		Term:     q.Get("term"),
		Page:     1,
		Limit:    h.defaultLimit,
		Category: q.Get("category"),
		Sort:     q.Get("sort"),
	}
	// Malformed numeric input is clamped or ignored, never fatal.
	if v := q.Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil && page >= 1 {
			req.Page = page
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit >= 1 {
			if limit > h.maxLimit {
				limit = h.maxLimit
			}
			req.Limit = limit
		}
	}
	if v := q.Get("minPrice"); v != "" {
		if p, err := strconv.ParseFloat(v, 64); err == nil && p >= 0 {
			req.MinPrice = &p
		}
	}
	if v := q.Get("maxPrice"); v != "" {
		if p, err := strconv.ParseFloat(v, 64); err == nil && p >= 0 {
			req.MaxPrice = &p
		}
	}
	return req
}

// encodingVariation normalizes the Accept-Encoding dimension that varies the
// response representation, so a gzip-negotiated payload is never served to a
// client that cannot decode it.
func encodingVariation(r *http.Request) string {
	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		return "gzip"
	}
	return "identity"
}

func emptyResponse(req search.Request) *search.Response {
	resp := search.FailureResponse(req)
	resp.Success = true
	return resp
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
