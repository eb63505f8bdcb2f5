package cache

import (
	"testing"
	"time"
)

func TestInMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	c := NewInMemoryCache[string, int](time.Second, 0)
	c.SetClock(func() time.Time { return now })

	c.Set("a", 1, 0)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}

	now = now.Add(2 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a to be expired")
	}

	c.cleanup()
	if c.Size() != 0 {
		t.Fatalf("Size() = %d after cleanup", c.Size())
	}
}

func TestPriceBoardSnapshot(t *testing.T) {
	now := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	pb := NewPriceBoard(10 * time.Second)
	defer pb.Close()
	pb.SetClock(func() time.Time { return now })

	pb.SetAll(map[string]float64{"SOLUSDT": 150, "BTCUSDT": 61000})
	now = now.Add(5 * time.Second)
	pb.Set("ETHUSDT", 3000)

	got := pb.Snapshot()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Symbol != "BTCUSDT" || got[2].Symbol != "SOLUSDT" {
		t.Fatalf("unexpected order: %+v", got)
	}

	now = now.Add(6 * time.Second)
	got = pb.Snapshot()
	if len(got) != 1 || got[0].Symbol != "ETHUSDT" {
		t.Fatalf("expected only ETHUSDT left, got %+v", got)
	}
}
