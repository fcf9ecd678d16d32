package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/tigraodegente/ecomm-gdg-sub002/pkg/errors"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/metrics"
)

// State is the cache disposition of one lookup.
type State string

const (
	StateFresh   State = "fresh"
	StateStale   State = "stale"
	StateMiss    State = "miss"
	StateExpired State = "expired"
	// StateBypass marks lookups served without the store (store
	// unreachable); the result is computed fresh.
	StateBypass State = "bypass"
)

// Entry is one cached response. Invariant: StoredAt <= FreshUntil <=
// StaleUntil. The store's own TTL enforces hard expiry at StaleUntil.
type Entry struct {
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload"`
	StoredAt   time.Time       `json:"storedAt"`
	FreshUntil time.Time       `json:"freshUntil"`
	StaleUntil time.Time       `json:"staleUntil"`
}

// ComputeFunc runs the full query pipeline and returns the serialised
// response payload.
type ComputeFunc func(ctx context.Context) ([]byte, error)

const revalidateTimeout = 30 * time.Second

// Manager implements the stale-while-revalidate protocol per key:
// MISS → FRESH → STALE → REVALIDATING → (FRESH | STALE) → EXPIRED.
// Within the fresh window the cached payload is served as-is; in the stale
// window it is still served while exactly one background revalidation runs;
// past the stale window the entry is gone and the caller blocks on a
// synchronous recompute.
type Manager struct {
	store        Store
	policy       TTLPolicy
	clk          clock.Clock
	group        singleflight.Group
	revalidating sync.Map
	metrics      *metrics.Metrics
	logger       *slog.Logger
	hits         atomic.Int64
	misses       atomic.Int64
}

func NewManager(store Store, policy TTLPolicy, clk clock.Clock, m *metrics.Metrics) *Manager {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Manager{
		store:   store,
		policy:  policy,
		clk:     clk,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// GetOrCompute serves key from the cache when possible, revalidating or
// recomputing per the entry's state. Store failures degrade to computing
// fresh; they never surface as request errors.
func (m *Manager) GetOrCompute(ctx context.Context, key, term string, compute ComputeFunc) ([]byte, State, error) {
	entry, err := m.load(ctx, key)
	if err != nil {
		m.logger.Warn("cache store unavailable, computing fresh",
			"key", key,
			"error", errors.Join(pkgerrors.ErrCacheStoreUnavailable, err),
		)
		payload, cerr := compute(ctx)
		return payload, StateBypass, cerr
	}

	now := m.clk.Now()
	if entry != nil {
		switch {
		case now.Before(entry.FreshUntil):
			m.hits.Add(1)
			return entry.Payload, StateFresh, nil
		case now.Before(entry.StaleUntil):
			m.hits.Add(1)
			m.triggerRevalidate(key, term, compute)
			return entry.Payload, StateStale, nil
		}
	}

	state := StateMiss
	if entry != nil {
		state = StateExpired
	}
	m.misses.Add(1)

	val, cerr, _ := m.group.Do(key, func() (any, error) {
		// A concurrent caller may have populated the key while this
		// one queued on the flight group.
		if e, lerr := m.load(ctx, key); lerr == nil && e != nil && m.clk.Now().Before(e.FreshUntil) {
			return []byte(e.Payload), nil
		}
		payload, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		m.put(ctx, key, term, payload)
		return payload, nil
	})
	if cerr != nil {
		return nil, state, cerr
	}
	return val.([]byte), state, nil
}

// load returns the entry for key, nil when absent, or an error when the
// store itself is unreachable.
func (m *Manager) load(ctx context.Context, key string) (*Entry, error) {
	if m.store == nil {
		return nil, errors.New("no store configured")
	}
	data, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		m.logger.Error("cache entry corrupt, dropping", "key", key, "error", err)
		_ = m.store.Delete(ctx, key)
		return nil, nil
	}
	return &entry, nil
}

func (m *Manager) put(ctx context.Context, key, term string, payload []byte) {
	fresh, stale := m.policy.Windows(term)
	now := m.clk.Now()
	entry := Entry{
		Key:        key,
		Payload:    payload,
		StoredAt:   now,
		FreshUntil: now.Add(fresh),
		StaleUntil: now.Add(stale),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		m.logger.Error("cache entry marshal failed", "key", key, "error", err)
		return
	}
	if err := m.store.Put(ctx, key, data, stale); err != nil {
		m.logger.Warn("cache put failed", "key", key, "error", err)
	}
}

// triggerRevalidate dispatches at most one background refresh per key. The
// task owns its context and error boundary; the triggering request returns
// before it completes and never observes its outcome.
func (m *Manager) triggerRevalidate(key, term string, compute ComputeFunc) {
	if _, inFlight := m.revalidating.LoadOrStore(key, struct{}{}); inFlight {
		if m.metrics != nil {
			m.metrics.RevalidationsTotal.WithLabelValues("skipped").Inc()
		}
		return
	}
	go func() {
		defer m.revalidating.Delete(key)
		ctx, cancel := context.WithTimeout(context.Background(), revalidateTimeout)
		defer cancel()

		payload, err := compute(ctx)
		if err != nil {
			// The stale entry stays; a failed refresh never evicts.
			m.logger.Warn("background revalidation failed",
				"key", key,
				"error", errors.Join(pkgerrors.ErrRevalidationFailed, err),
			)
			if m.metrics != nil {
				m.metrics.RevalidationsTotal.WithLabelValues("failure").Inc()
			}
			return
		}
		m.put(ctx, key, term, payload)
		if m.metrics != nil {
			m.metrics.RevalidationsTotal.WithLabelValues("success").Inc()
		}
		m.logger.Debug("cache entry revalidated", "key", key)
	}()
}

// Revalidating reports whether a background refresh is in flight for key.
func (m *Manager) Revalidating(key string) bool {
	_, ok := m.revalidating.Load(key)
	return ok
}

// InvalidateCategories deletes cached entries in the given category
// segments and the unfiltered "any" segment, which can reference documents
// from any category.
func (m *Manager) InvalidateCategories(ctx context.Context, categories []string) error {
	if m.store == nil {
		return nil
	}
	patterns := []string{CategoryPattern("")}
	for _, c := range categories {
		patterns = append(patterns, CategoryPattern(c))
	}
	var total int64
	for _, p := range patterns {
		deleted, err := m.store.DeletePattern(ctx, p)
		total += deleted
		if err != nil {
			return err
		}
	}
	if m.metrics != nil {
		m.metrics.CacheEntriesEvicted.Add(float64(total))
	}
	m.logger.Info("cache invalidated", "patterns", len(patterns), "keys_deleted", total)
	return nil
}

// Invalidate deletes every cached query result.
func (m *Manager) Invalidate(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	deleted, err := m.store.DeletePattern(ctx, keyPrefix+"*")
	if err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.CacheEntriesEvicted.Add(float64(deleted))
	}
	m.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counters.
func (m *Manager) Stats() (hits, misses int64) {
	return m.hits.Load(), m.misses.Load()
}
