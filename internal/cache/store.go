// Package cache wraps the query pipeline with a keyed, TTL-based,
// stale-while-revalidate cache backed by a persistent key/value store.
package cache

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"

	pkgredis "github.com/tigraodegente/ecomm-gdg-sub002/pkg/redis"
)

// ErrNotFound is returned by Store.Get when the key does not exist or has
// hard-expired.
var ErrNotFound = errors.New("cache: key not found")

// Store abstracts the persistent key/value store holding cache entries and
// index snapshots. The engine functions correctly when a Store is
// transiently unavailable; callers degrade to computing fresh results.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern removes all keys matching the glob pattern and
	// returns how many were deleted.
	DeletePattern(ctx context.Context, pattern string) (int64, error)
	Ping(ctx context.Context) error
}

// RedisStore implements Store on the shared Redis client.
type RedisStore struct {
	client *pkgredis.Client
}

func NewRedisStore(client *pkgredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl)
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...)
}

func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	return s.client.FlushByPattern(ctx, pattern)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// MemoryStore is the in-process fallback used when Redis is not configured
// or unreachable at startup. Entries hard-expire on read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clk     clock.Clock
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.WallClock
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		clk:     clk,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !e.expiresAt.IsZero() && !s.clk.Now().Before(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.clk.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = memoryEntry{value: value, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeletePattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for k := range s.entries {
		if matched, _ := path.Match(pattern, k); matched || prefixMatch(pattern, k) {
			delete(s.entries, k)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// prefixMatch handles the common "prefix*" glob without path.Match's
// separator special-casing, since cache keys contain colons.
func prefixMatch(pattern, key string) bool {
	if !strings.HasSuffix(pattern, "*") {
		return false
	}
	return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
}
