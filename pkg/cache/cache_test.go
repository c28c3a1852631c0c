package cache

import (
	"bytes"
	"fmt"
	"testing"
	"time"
)

func TestCache_RoundTrip(t *testing.T) {
	c := New[[]byte](nil)

	content := []byte("pragma solidity ^0.8.0;")
	c.Set("repo/contracts", content)

	got, ok := c.Get("repo/contracts")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}
}

func TestCache_Miss(t *testing.T) {
	c := New[string](nil)

	if _, ok := c.Get("absent"); ok {
		t.Fatal("expected miss for absent key")
	}

	stats := c.Stats()
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New[string](nil)

	c.SetTTL("key", "value", 10*time.Millisecond)
	if _, ok := c.Get("key"); !ok {
		t.Fatal("expected hit within TTL")
	}

	time.Sleep(25 * time.Millisecond)

	// Expired entries behave as misses even before the sweep runs.
	if _, ok := c.Get("key"); ok {
		t.Fatal("expected miss after TTL elapsed")
	}
}

func TestCache_LeastUsedEviction(t *testing.T) {
	c := New[int](&Config{Capacity: 3, DefaultTTL: time.Minute, SweepInterval: time.Minute})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch a and c so b has the lowest access count.
	c.Get("a")
	c.Get("c")

	c.Set("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Error("expected least-used entry b to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("expected %s to survive eviction", key)
		}
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", c.Stats().Evictions)
	}
}

func TestCache_SweepRemovesExpired(t *testing.T) {
	c := New[int](nil)

	for i := 0; i < 5; i++ {
		c.SetTTL(fmt.Sprintf("short-%d", i), i, 5*time.Millisecond)
	}
	c.SetTTL("long", 99, time.Minute)

	time.Sleep(15 * time.Millisecond)

	removed := c.Sweep()
	if removed != 5 {
		t.Errorf("expected 5 entries removed, got %d", removed)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 remaining entry, got %d", c.Len())
	}
}

func TestCache_BackgroundSweep(t *testing.T) {
	c := New[int](&Config{Capacity: 10, DefaultTTL: time.Minute, SweepInterval: 10 * time.Millisecond})
	c.Start()
	defer c.Stop()

	c.SetTTL("ephemeral", 1, 5*time.Millisecond)

	deadline := time.After(time.Second)
	for c.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("sweep loop did not remove expired entry")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c := New[int](&Config{Capacity: 2, DefaultTTL: time.Minute, SweepInterval: time.Minute})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3)

	if c.Stats().Evictions != 0 {
		t.Errorf("overwrite should not evict, got %d evictions", c.Stats().Evictions)
	}
	if v, _ := c.Get("a"); v != 3 {
		t.Errorf("expected overwritten value 3, got %d", v)
	}
}
