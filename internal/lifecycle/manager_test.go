package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/tigraodegente/ecomm-gdg-sub002/internal/cache"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/catalog"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/config"
	pkgerrors "github.com/tigraodegente/ecomm-gdg-sub002/pkg/errors"
)

func testConfig() config.IndexConfig {
	return config.IndexConfig{
		RebuildInterval: 6 * time.Hour,
		StaleAfter:      time.Hour,
		SourceTimeout:   5 * time.Second,
	}
}

func fixtureDocs() []catalog.Document {
	return []catalog.Document{
		{ID: "1", Name: "Berço Montessoriano", Category: "Berços", Price: 899.90},
		{ID: "2", Name: "Kit Berço", Category: "Berços", Price: 199.90},
	}
}

func fixedSource(docs []catalog.Document) catalog.Source {
	return catalog.SourceFunc(func(context.Context) ([]catalog.Document, error) {
		return docs, nil
	})
}

func TestCurrentWithoutBuild(t *testing.T) {
	m := New(fixedSource(fixtureDocs()), nil, nil, testConfig(), nil, nil)
	if _, err := m.Current(context.Background()); !errors.Is(err, pkgerrors.ErrIndexUnavailable) {
		t.Fatalf("Current before build = %v, want ErrIndexUnavailable", err)
	}
}

func TestRebuildAndCurrent(t *testing.T) {
	m := New(fixedSource(fixtureDocs()), nil, nil, testConfig(), nil, nil)
	ctx := context.Background()

	if err := m.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	ix, err := m.Current(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 2 {
		t.Fatalf("index Len = %d, want 2", ix.Len())
	}
}

// TestFailedRebuildKeepsPreviousIndex verifies a source failure never
// replaces a working index with nothing.
func TestFailedRebuildKeepsPreviousIndex(t *testing.T) {
	var fail atomic.Bool
	source := catalog.SourceFunc(func(context.Context) ([]catalog.Document, error) {
		if fail.Load() {
			return nil, errors.New("database down")
		}
		return fixtureDocs(), nil
	})
	m := New(source, nil, nil, testConfig(), nil, nil)
	ctx := context.Background()

	if err := m.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	fail.Store(true)
	if err := m.Rebuild(ctx); !errors.Is(err, pkgerrors.ErrIndexUnavailable) {
		t.Fatalf("failed rebuild error = %v, want ErrIndexUnavailable", err)
	}

	ix, err := m.Current(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 2 {
		t.Fatalf("previous index lost, Len = %d", ix.Len())
	}
}

// TestEmptySourceKeepsPreviousIndex verifies a source returning zero
// documents is treated as a failure, not an empty catalog.
func TestEmptySourceKeepsPreviousIndex(t *testing.T) {
	var empty atomic.Bool
	source := catalog.SourceFunc(func(context.Context) ([]catalog.Document, error) {
		if empty.Load() {
			return nil, nil
		}
		return fixtureDocs(), nil
	})
	m := New(source, nil, nil, testConfig(), nil, nil)
	ctx := context.Background()

	if err := m.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	empty.Store(true)
	if err := m.Rebuild(ctx); !errors.Is(err, pkgerrors.ErrIndexUnavailable) {
		t.Fatalf("empty rebuild error = %v, want ErrIndexUnavailable", err)
	}
	ix, _ := m.Current(ctx)
	if ix == nil || ix.Len() != 2 {
		t.Fatal("previous index lost after empty fetch")
	}
}

func TestRefreshIncremental(t *testing.T) {
	m := New(fixedSource(fixtureDocs()), nil, nil, testConfig(), nil, nil)
	ctx := context.Background()
	if err := m.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}

	indexed, err := m.Refresh(ctx, true, []catalog.Document{
		{ID: "3", Name: "Cortina Infantil", Category: "Decoração", Price: 89.90},
	})
	if err != nil {
		t.Fatal(err)
	}
	if indexed != 1 {
		t.Fatalf("documentsIndexed = %d, want 1", indexed)
	}
	ix, _ := m.Current(ctx)
	if ix.Len() != 3 {
		t.Fatalf("patched index Len = %d, want 3", ix.Len())
	}
	if _, ok := ix.Doc("1"); !ok {
		t.Fatal("patch dropped existing document")
	}
}

func TestRefreshFullReplaces(t *testing.T) {
	m := New(fixedSource(fixtureDocs()), nil, nil, testConfig(), nil, nil)
	ctx := context.Background()
	if err := m.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}

	indexed, err := m.Refresh(ctx, false, []catalog.Document{
		{ID: "9", Name: "Tapete", Category: "Decoração", Price: 120},
	})
	if err != nil || indexed != 1 {
		t.Fatalf("refresh = %d, %v", indexed, err)
	}
	ix, _ := m.Current(ctx)
	if ix.Len() != 1 {
		t.Fatalf("full refresh Len = %d, want 1", ix.Len())
	}
	if _, ok := ix.Doc("1"); ok {
		t.Fatal("full refresh must replace the catalog wholesale")
	}
}

func TestRefreshRejectsInvalidDocuments(t *testing.T) {
	m := New(fixedSource(fixtureDocs()), nil, nil, testConfig(), nil, nil)
	ctx := context.Background()
	if err := m.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}

	_, err := m.Refresh(ctx, true, []catalog.Document{{ID: "", Name: "Nameless"}})
	if !errors.Is(err, pkgerrors.ErrInvalidQuery) {
		t.Fatalf("invalid document error = %v, want ErrInvalidQuery", err)
	}
	ix, _ := m.Current(ctx)
	if ix.Len() != 2 {
		t.Fatal("rejected batch must not touch the index")
	}
}

// TestSnapshotRestore verifies a fresh process with an unreachable source
// restores the last persisted snapshot on Start.
func TestSnapshotRestore(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	store := cache.NewMemoryStore(clk)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := New(fixedSource(fixtureDocs()), store, nil, testConfig(), nil, nil)
	if err := first.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}

	down := catalog.SourceFunc(func(context.Context) ([]catalog.Document, error) {
		return nil, errors.New("database down")
	})
	second := New(down, store, nil, testConfig(), nil, nil)
	second.Start(ctx)

	ix, err := second.Current(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 2 {
		t.Fatalf("restored Len = %d, want 2", ix.Len())
	}
}

type countingInvalidator struct {
	categories atomic.Pointer[[]string]
}

func (c *countingInvalidator) InvalidateCategories(_ context.Context, categories []string) error {
	c.categories.Store(&categories)
	return nil
}

// TestRebuildInvalidatesAffectedCategories verifies rebuilds evict the
// cache segments of every touched category.
func TestRebuildInvalidatesAffectedCategories(t *testing.T) {
	inv := &countingInvalidator{}
	m := New(fixedSource(fixtureDocs()), nil, inv, testConfig(), nil, nil)
	ctx := context.Background()

	if err := m.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	got := inv.categories.Load()
	if got == nil || len(*got) != 1 || (*got)[0] != "Berços" {
		t.Fatalf("invalidated categories = %v, want [Berços]", got)
	}

	if _, err := m.Refresh(ctx, true, []catalog.Document{
		{ID: "3", Name: "Cortina", Category: "Decoração", Price: 89.90},
	}); err != nil {
		t.Fatal(err)
	}
	got = inv.categories.Load()
	if got == nil || len(*got) != 1 || (*got)[0] != "Decoração" {
		t.Fatalf("patch invalidated categories = %v, want [Decoração]", got)
	}
}

// TestStaleIndexTriggersAsyncRebuild verifies a read past the staleness
// window still serves the old index while dispatching a rebuild.
func TestStaleIndexTriggersAsyncRebuild(t *testing.T) {
	var version atomic.Int32
	source := catalog.SourceFunc(func(context.Context) ([]catalog.Document, error) {
		if version.Add(1) == 1 {
			return fixtureDocs(), nil
		}
		return append(fixtureDocs(), catalog.Document{ID: "3", Name: "Cortina", Category: "Decoração", Price: 89.90}), nil
	})
	clk := testclock.NewClock(time.Now())
	m := New(source, nil, nil, testConfig(), nil, clk)
	ctx := context.Background()

	if err := m.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	clk.Advance(2 * time.Hour)

	ix, err := m.Current(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 2 {
		t.Fatal("stale read must serve the previous index")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if ix, _ := m.Current(ctx); ix != nil && ix.Len() == 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("async rebuild never swapped in the new index")
}
