// Package cache provides a bounded in-process TTL cache with least-used
// eviction and a periodic background sweep.
package cache

import (
	"fmt"
	"sync"
	"time"
)

// Config configures a Cache.
type Config struct {
	// Capacity is the maximum number of entries. Inserting beyond capacity
	// evicts the entry with the lowest access count.
	// Default: 256
	Capacity int

	// DefaultTTL is applied by Set when no per-entry TTL is given.
	// Default: 10 minutes
	DefaultTTL time.Duration

	// SweepInterval is how often the background sweep removes expired
	// entries, independent of access patterns.
	// Default: 1 minute
	SweepInterval time.Duration

	// Verbose enables debug logging.
	Verbose bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		Capacity:      256,
		DefaultTTL:    10 * time.Minute,
		SweepInterval: 1 * time.Minute,
	}
}

type entry[T any] struct {
	value       T
	createdAt   time.Time
	ttl         time.Duration
	accessCount int64
}

func (e *entry[T]) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// Cache is a TTL-bound memoization layer. It is a pure performance
// optimization: a cold cache produces identical results to a warm one.
// Safe for concurrent use from multiple scans.
type Cache[T any] struct {
	config *Config

	mu      sync.RWMutex
	entries map[string]*entry[T]

	hits      int64
	misses    int64
	evictions int64

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a new cache.
func New[T any](cfg *Config) *Cache[T] {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 256
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 1 * time.Minute
	}

	return &Cache[T]{
		config:  cfg,
		entries: make(map[string]*entry[T]),
		stopCh:  make(chan struct{}),
	}
}

// Get returns the value for key if present and within TTL. An expired entry
// is logically absent even if the sweep has not removed it yet.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if e.expired(time.Now()) {
		delete(c.entries, key)
		c.misses++
		return zero, false
	}

	e.accessCount++
	c.hits++
	return e.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache[T]) Set(key string, value T) {
	c.SetTTL(key, value, c.config.DefaultTTL)
}

// SetTTL stores value under key with an explicit TTL, evicting the least
// used entry if the cache is at capacity.
func (c *Cache[T]) SetTTL(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.config.Capacity {
		c.evictLeastUsedLocked()
	}

	c.entries[key] = &entry[T]{
		value:     value,
		createdAt: time.Now(),
		ttl:       ttl,
	}
}

// Delete removes an entry.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of physically present entries.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLeastUsedLocked removes the entry with the lowest access count.
// Caller must hold the write lock.
func (c *Cache[T]) evictLeastUsedLocked() {
	var victim string
	var least int64 = -1

	for key, e := range c.entries {
		if least < 0 || e.accessCount < least {
			victim = key
			least = e.accessCount
		}
	}

	if victim != "" {
		delete(c.entries, victim)
		c.evictions++
		if c.config.Verbose {
			fmt.Printf("[cache] Evicted least-used entry: %s (accesses=%d)\n", victim, least)
		}
	}
}

// Sweep removes all expired entries.
func (c *Cache[T]) Sweep() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 && c.config.Verbose {
		fmt.Printf("[cache] Sweep removed %d expired entries\n", removed)
	}
	return removed
}

// Start begins the background sweep loop.
func (c *Cache[T]) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	c.wg.Add(1)
	go c.sweepLoop()
}

// Stop stops the background sweep loop.
func (c *Cache[T]) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Cache[T]) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Stats contains cache statistics.
type Stats struct {
	Entries   int       `json:"entries"`
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Evictions int64     `json:"evictions"`
	Oldest    time.Time `json:"oldest_entry,omitempty"`
}

// Stats returns cache statistics.
func (c *Cache[T]) Stats() *Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := &Stats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	for _, e := range c.entries {
		if s.Oldest.IsZero() || e.createdAt.Before(s.Oldest) {
			s.Oldest = e.createdAt
		}
	}
	return s
}
