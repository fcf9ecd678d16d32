package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
)

func TestMemoryStorePutGet(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	s := NewMemoryStore(clk)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Put(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	s := NewMemoryStore(clk)
	ctx := context.Background()

	s.Put(ctx, "k", []byte("v"), time.Minute)
	clk.Advance(59 * time.Second)
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("entry expired early: %v", err)
	}
	clk.Advance(2 * time.Second)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after TTL = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreNoTTL(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	s := NewMemoryStore(clk)
	ctx := context.Background()

	// ttl 0 persists indefinitely; index snapshots rely on this.
	s.Put(ctx, "snapshot", []byte("docs"), 0)
	clk.Advance(1000 * time.Hour)
	if _, err := s.Get(ctx, "snapshot"); err != nil {
		t.Fatalf("zero-ttl entry expired: %v", err)
	}
}

func TestMemoryStoreDeletePattern(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	s := NewMemoryStore(clk)
	ctx := context.Background()

	s.Put(ctx, "search:q:bercos:aaa", []byte("1"), time.Minute)
	s.Put(ctx, "search:q:bercos:bbb", []byte("2"), time.Minute)
	s.Put(ctx, "search:q:any:ccc", []byte("3"), time.Minute)

	deleted, err := s.DeletePattern(ctx, "search:q:bercos:*")
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}
	if _, err := s.Get(ctx, "search:q:any:ccc"); err != nil {
		t.Fatalf("unrelated key evicted: %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	s := NewMemoryStore(clk)
	ctx := context.Background()

	s.Put(ctx, "a", []byte("1"), time.Minute)
	s.Put(ctx, "b", []byte("2"), time.Minute)
	if err := s.Delete(ctx, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatal("key a survived delete")
	}
}
