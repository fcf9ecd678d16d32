// Package lifecycle owns the live search index: an atomically-swapped
// reference rebuilt on a schedule, on demand, and from catalog-change
// events. Readers never observe a partially built index; the swap is the
// only mutation they can see.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"github.com/tigraodegente/ecomm-gdg-sub002/internal/cache"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/catalog"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/index"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/config"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/errors"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/metrics"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/resilience"
)

const snapshotKey = "search:index:snapshot"

// Invalidator evicts cached query results for the categories touched by an
// index change. The cache manager implements it.
type Invalidator interface {
	InvalidateCategories(ctx context.Context, categories []string) error
}

// Manager holds the live index and coordinates rebuilds and patches.
type Manager struct {
	source      catalog.Source
	live        atomic.Pointer[index.Index]
	snapshots   cache.Store
	invalidator Invalidator
	cfg         config.IndexConfig
	breaker     *resilience.CircuitBreaker
	metrics     *metrics.Metrics
	clk         clock.Clock
	rebuilding  atomic.Bool
	logger      *slog.Logger
}

// New creates a Manager. snapshots and invalidator may be nil; the manager
// then runs in-memory only and skips proactive eviction.
func New(source catalog.Source, snapshots cache.Store, invalidator Invalidator, cfg config.IndexConfig, m *metrics.Metrics, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.WallClock
	}
	if cfg.RebuildInterval <= 0 {
		cfg.RebuildInterval = 6 * time.Hour
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Hour
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 30 * time.Second
	}
	return &Manager{
		source:      source,
		snapshots:   snapshots,
		invalidator: invalidator,
		cfg:         cfg,
		breaker:     resilience.NewCircuitBreaker("document-source", resilience.CircuitBreakerConfig{}),
		metrics:     m,
		clk:         clk,
		logger:      slog.Default().With("component", "index-lifecycle"),
	}
}

// Current returns the live index. A stale index is still served while an
// async rebuild is dispatched; only a missing index is an error.
func (m *Manager) Current(ctx context.Context) (*index.Index, error) {
	ix := m.live.Load()
	if ix == nil {
		return nil, fmt.Errorf("%w: no index has been built", errors.ErrIndexUnavailable)
	}
	if m.clk.Now().Sub(ix.BuiltAt()) > m.cfg.StaleAfter {
		m.rebuildAsync()
	}
	return ix, nil
}

// Start performs the initial build and enters the scheduled rebuild loop
// until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	if err := m.Rebuild(ctx); err != nil {
		m.logger.Warn("initial index build failed, trying snapshot", "error", err)
		if serr := m.loadSnapshot(ctx); serr != nil {
			m.logger.Error("snapshot restore failed, starting without index", "error", serr)
		}
	}
	go func() {
		ticker := time.NewTicker(m.cfg.RebuildInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Rebuild(ctx); err != nil {
					m.logger.Warn("scheduled rebuild failed, keeping previous index", "error", err)
				}
			}
		}
	}()
}

// Rebuild fetches the full catalog and swaps in a freshly built index. Any
// failure, including a timed-out source call, leaves the previous live
// index intact.
func (m *Manager) Rebuild(ctx context.Context) error {
	var docs []catalog.Document
	err := m.breaker.Execute(func() error {
		return resilience.Retry(ctx, "fetch-catalog", resilience.RetryConfig{}, func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.SourceTimeout)
			defer cancel()
			var ferr error
			docs, ferr = m.source.All(fetchCtx)
			return ferr
		})
	})
	if err != nil {
		m.recordRebuild("full", "failure")
		return fmt.Errorf("%w: %v", errors.ErrIndexUnavailable, err)
	}

	ix, err := index.Build(docs)
	if err != nil {
		m.recordRebuild("full", "failure")
		return err
	}

	old := m.live.Swap(ix)
	m.recordRebuild("full", "success")
	if m.metrics != nil {
		m.metrics.IndexedDocuments.Set(float64(ix.Len()))
	}
	m.logger.Info("index rebuilt", "documents", ix.Len())

	m.persistSnapshot(ctx, ix)
	m.invalidate(ctx, affectedCategories(old, ix))
	return nil
}

// Refresh implements the index-refresh API: incremental patches upsert the
// given documents into a new index; full mode requires documents and
// replaces the index wholesale. It returns the number of documents indexed.
func (m *Manager) Refresh(ctx context.Context, incremental bool, docs []catalog.Document) (int, error) {
	for i := range docs {
		if err := docs[i].Validate(); err != nil {
			return 0, fmt.Errorf("%w: %v", errors.ErrInvalidQuery, err)
		}
		docs[i].Normalize()
	}

	if incremental {
		old := m.live.Load()
		if old == nil {
			// Nothing to patch onto; treat the batch as the full
			// catalog.
			incremental = false
		} else {
			ix := index.Patch(old, docs)
			m.live.Store(ix)
			m.recordRebuild("patch", "success")
			if m.metrics != nil {
				m.metrics.IndexedDocuments.Set(float64(ix.Len()))
			}
			m.logger.Info("index patched", "batch", len(docs), "documents", ix.Len())
			m.persistSnapshot(ctx, ix)
			m.invalidate(ctx, batchCategories(docs))
			return len(docs), nil
		}
	}

	ix, err := index.Build(docs)
	if err != nil {
		m.recordRebuild("full", "failure")
		return 0, err
	}
	old := m.live.Swap(ix)
	m.recordRebuild("full", "success")
	if m.metrics != nil {
		m.metrics.IndexedDocuments.Set(float64(ix.Len()))
	}
	m.logger.Info("index replaced via refresh", "documents", ix.Len())
	m.persistSnapshot(ctx, ix)
	m.invalidate(ctx, affectedCategories(old, ix))
	return len(docs), nil
}

// rebuildAsync dispatches one background rebuild when the live index has
// outlived its staleness window. Deduplicated by an in-flight flag so
// concurrent readers trigger at most one.
func (m *Manager) rebuildAsync() {
	if !m.rebuilding.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer m.rebuilding.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), 2*m.cfg.SourceTimeout)
		defer cancel()
		if err := m.Rebuild(ctx); err != nil {
			m.logger.Warn("async rebuild failed, keeping previous index", "error", err)
		}
	}()
}

func (m *Manager) persistSnapshot(ctx context.Context, ix *index.Index) {
	if m.snapshots == nil {
		return
	}
	data, err := ix.Snapshot()
	if err != nil {
		m.logger.Error("snapshot serialisation failed", "error", err)
		return
	}
	// Snapshots outlive the index staleness window on purpose: a restart
	// with an unreachable source restores from here.
	if err := m.snapshots.Put(ctx, snapshotKey, data, 0); err != nil {
		m.logger.Warn("snapshot persist failed", "error", err)
	}
}

func (m *Manager) loadSnapshot(ctx context.Context) error {
	if m.snapshots == nil {
		return fmt.Errorf("no snapshot store configured")
	}
	data, err := m.snapshots.Get(ctx, snapshotKey)
	if err != nil {
		return fmt.Errorf("reading index snapshot: %w", err)
	}
	ix, err := index.FromSnapshot(data)
	if err != nil {
		return err
	}
	m.live.Store(ix)
	if m.metrics != nil {
		m.metrics.IndexedDocuments.Set(float64(ix.Len()))
	}
	m.logger.Info("index restored from snapshot", "documents", ix.Len())
	return nil
}

func (m *Manager) invalidate(ctx context.Context, categories []string) {
	if m.invalidator == nil {
		return
	}
	if err := m.invalidator.InvalidateCategories(ctx, categories); err != nil {
		m.logger.Warn("cache invalidation failed", "error", err)
	}
}

func (m *Manager) recordRebuild(mode, status string) {
	if m.metrics != nil {
		m.metrics.IndexRebuildsTotal.WithLabelValues(mode, status).Inc()
	}
}

// affectedCategories unions the categories of the old and new index: coarse,
// but every cached entry that could reference a changed document lands in
// one of them or in the unfiltered segment.
func affectedCategories(old, new_ *index.Index) []string {
	if old == nil {
		return new_.Categories()
	}
	seen := make(map[string]struct{})
	var out []string
	for _, cats := range [][]string{old.Categories(), new_.Categories()} {
		for _, c := range cats {
			if _, dup := seen[c]; !dup {
				seen[c] = struct{}{}
				out = append(out, c)
			}
		}
	}
	return out
}

func batchCategories(docs []catalog.Document) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range docs {
		if d.Category == "" {
			continue
		}
		if _, dup := seen[d.Category]; !dup {
			seen[d.Category] = struct{}{}
			out = append(out, d.Category)
		}
	}
	return out
}
