package cache

import (
	"testing"
	"time"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a: got %v %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size: got %d", c.Size())
	}
	if s := c.Stats(); s.Evictions != 1 || s.Misses != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestLRUCacheTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute).WithClock(func() time.Time { return now })
	c.Set("k", "v")
	c.Set("k2", "v2")

	now = now.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should still be fresh")
	}

	now = now.Add(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should have expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired: got %d", n)
	}
	if c.Size() != 0 {
		t.Fatalf("size after clean: %d", c.Size())
	}
}

func TestManagerSweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](10, time.Second).WithClock(func() time.Time { return now })
	c.Set("a", 1)

	m := NewManager(nil)
	m.Register(c)
	now = now.Add(time.Hour)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("sweep: got %d", n)
	}

	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}
