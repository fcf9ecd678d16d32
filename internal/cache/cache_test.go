package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
)

func testPolicy() TTLPolicy {
	return TTLPolicy{BaseFresh: time.Minute, StaleMultiplier: 10}
}

// waitNotRevalidating polls until the background refresh for key finishes.
func waitNotRevalidating(t *testing.T, m *Manager, key string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !m.Revalidating(key) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("revalidation did not finish")
}

func TestGetOrComputeMissThenFresh(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := NewManager(NewMemoryStore(clk), testPolicy(), clk, nil)
	ctx := context.Background()

	var calls atomic.Int32
	compute := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte(`{"v":1}`), nil
	}

	payload, state, err := m.GetOrCompute(ctx, "k", "berço", compute)
	if err != nil || state != StateMiss || string(payload) != `{"v":1}` {
		t.Fatalf("first call: payload=%s state=%s err=%v", payload, state, err)
	}

	payload, state, err = m.GetOrCompute(ctx, "k", "berço", compute)
	if err != nil || state != StateFresh || string(payload) != `{"v":1}` {
		t.Fatalf("second call: payload=%s state=%s err=%v", payload, state, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("compute ran %d times, want 1", calls.Load())
	}

	hits, misses := m.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("stats = %d/%d, want 1/1", hits, misses)
	}
}

// TestStaleWhileRevalidate drives the full state walk: a stale read serves
// the stored payload unchanged, fires exactly one background refresh even
// under concurrent stale reads, and subsequent reads see the new payload.
func TestStaleWhileRevalidate(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := NewManager(NewMemoryStore(clk), testPolicy(), clk, nil)
	ctx := context.Background()

	release := make(chan struct{})
	var calls atomic.Int32
	compute := func(context.Context) ([]byte, error) {
		if calls.Add(1) > 1 {
			<-release
			return []byte(`{"v":2}`), nil
		}
		return []byte(`{"v":1}`), nil
	}

	if _, state, _ := m.GetOrCompute(ctx, "k", "berço", compute); state != StateMiss {
		t.Fatalf("state = %s, want miss", state)
	}

	// "berço" is 5 runes: fresh 2m, stale 20m. Land inside the stale
	// window.
	clk.Advance(3 * time.Minute)

	payload, state, err := m.GetOrCompute(ctx, "k", "berço", compute)
	if err != nil || state != StateStale {
		t.Fatalf("stale read: state=%s err=%v", state, err)
	}
	if string(payload) != `{"v":1}` {
		t.Fatalf("stale read must serve the stored payload, got %s", payload)
	}

	// A second stale read while the refresh is in flight must not fire
	// another one.
	payload, state, err = m.GetOrCompute(ctx, "k", "berço", compute)
	if err != nil || state != StateStale || string(payload) != `{"v":1}` {
		t.Fatalf("concurrent stale read: payload=%s state=%s err=%v", payload, state, err)
	}

	close(release)
	waitNotRevalidating(t, m, "k")

	if got := calls.Load(); got != 2 {
		t.Fatalf("compute ran %d times, want 2 (one initial, one refresh)", got)
	}
	payload, state, err = m.GetOrCompute(ctx, "k", "berço", compute)
	if err != nil || state != StateFresh || string(payload) != `{"v":2}` {
		t.Fatalf("after refresh: payload=%s state=%s err=%v", payload, state, err)
	}
}

// TestFailedRevalidationKeepsStale verifies a failing background refresh
// never evicts the stale entry; it keeps serving until hard expiry.
func TestFailedRevalidationKeepsStale(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := NewManager(NewMemoryStore(clk), testPolicy(), clk, nil)
	ctx := context.Background()

	var calls atomic.Int32
	compute := func(context.Context) ([]byte, error) {
		if calls.Add(1) > 1 {
			return nil, errors.New("pipeline down")
		}
		return []byte(`{"v":1}`), nil
	}

	m.GetOrCompute(ctx, "k", "berço", compute)
	clk.Advance(3 * time.Minute)

	_, state, _ := m.GetOrCompute(ctx, "k", "berço", compute)
	if state != StateStale {
		t.Fatalf("state = %s, want stale", state)
	}
	waitNotRevalidating(t, m, "k")

	payload, state, err := m.GetOrCompute(ctx, "k", "berço", compute)
	if err != nil || state != StateStale || string(payload) != `{"v":1}` {
		t.Fatalf("after failed refresh: payload=%s state=%s err=%v", payload, state, err)
	}
}

func TestHardExpiry(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := NewManager(NewMemoryStore(clk), testPolicy(), clk, nil)
	ctx := context.Background()

	var calls atomic.Int32
	compute := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte(`{"v":1}`), nil
	}

	m.GetOrCompute(ctx, "k", "berço", compute)
	// Past the stale window the store's own TTL has dropped the entry.
	clk.Advance(21 * time.Minute)

	_, state, err := m.GetOrCompute(ctx, "k", "berço", compute)
	if err != nil || state != StateMiss {
		t.Fatalf("after expiry: state=%s err=%v", state, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("compute ran %d times, want 2", calls.Load())
	}
}

// TestMissSingleFlight verifies concurrent misses on one key collapse into
// a single compute.
func TestMissSingleFlight(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := NewManager(NewMemoryStore(clk), testPolicy(), clk, nil)
	ctx := context.Background()

	gate := make(chan struct{})
	var calls atomic.Int32
	compute := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-gate
		return []byte(`{"v":1}`), nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([][]byte, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload, _, err := m.GetOrCompute(ctx, "k", "berço", compute)
			if err != nil {
				t.Errorf("goroutine %d: %v", i, err)
			}
			results[i] = payload
		}(i)
	}
	// Give the goroutines time to pile onto the flight group, then open
	// the gate.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("compute ran %d times, want 1", calls.Load())
	}
	for i, r := range results {
		if string(r) != `{"v":1}` {
			t.Fatalf("goroutine %d payload = %s", i, r)
		}
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (failingStore) Put(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (failingStore) Delete(context.Context, ...string) error { return errors.New("connection refused") }
func (failingStore) DeletePattern(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}
func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }

// TestStoreUnavailableBypasses verifies an unreachable store degrades to
// computing fresh rather than failing the request.
func TestStoreUnavailableBypasses(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := NewManager(failingStore{}, testPolicy(), clk, nil)

	payload, state, err := m.GetOrCompute(context.Background(), "k", "berço", func(context.Context) ([]byte, error) {
		return []byte(`{"v":1}`), nil
	})
	if err != nil || state != StateBypass || string(payload) != `{"v":1}` {
		t.Fatalf("bypass: payload=%s state=%s err=%v", payload, state, err)
	}
}

// TestCorruptEntryRecovers verifies an undecodable stored entry is treated
// as a miss and dropped rather than poisoning the key.
func TestCorruptEntryRecovers(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	store := NewMemoryStore(clk)
	m := NewManager(store, testPolicy(), clk, nil)
	ctx := context.Background()

	store.Put(ctx, "k", []byte("{corrupt"), time.Hour)

	payload, state, err := m.GetOrCompute(ctx, "k", "berço", func(context.Context) ([]byte, error) {
		return []byte(`{"v":1}`), nil
	})
	if err != nil || state != StateMiss || string(payload) != `{"v":1}` {
		t.Fatalf("corrupt entry: payload=%s state=%s err=%v", payload, state, err)
	}
}

func TestInvalidateCategories(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	store := NewMemoryStore(clk)
	m := NewManager(store, testPolicy(), clk, nil)
	ctx := context.Background()

	keys := []string{
		Key(KeyParams{Term: "berço", Category: "Berços"}),
		Key(KeyParams{Term: "lençol", Category: "Berços"}),
		Key(KeyParams{Term: "berço"}),
		Key(KeyParams{Term: "cortina", Category: "Decoração"}),
	}
	for _, k := range keys {
		store.Put(ctx, k, []byte("x"), time.Hour)
	}

	if err := m.InvalidateCategories(ctx, []string{"Berços"}); err != nil {
		t.Fatal(err)
	}

	// Scoped keys and the unfiltered segment are gone; other categories
	// survive.
	for _, k := range keys[:3] {
		if _, err := store.Get(ctx, k); !errors.Is(err, ErrNotFound) {
			t.Fatalf("key %s survived invalidation", k)
		}
	}
	if _, err := store.Get(ctx, keys[3]); err != nil {
		t.Fatalf("unrelated category evicted: %v", err)
	}
}

func TestInvalidateAll(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	store := NewMemoryStore(clk)
	m := NewManager(store, testPolicy(), clk, nil)
	ctx := context.Background()

	store.Put(ctx, Key(KeyParams{Term: "berço"}), []byte("x"), time.Hour)
	store.Put(ctx, "search:index:snapshot", []byte("docs"), 0)

	if err := m.Invalidate(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, Key(KeyParams{Term: "berço"})); !errors.Is(err, ErrNotFound) {
		t.Fatal("query entry survived full invalidation")
	}
	// Index snapshots live outside the query-key namespace.
	if _, err := store.Get(ctx, "search:index:snapshot"); err != nil {
		t.Fatalf("snapshot evicted by cache invalidation: %v", err)
	}
}
