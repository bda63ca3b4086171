/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package manifest

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultTTL is how long resolved files stay cached.
const DefaultTTL = time.Hour

var (
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "translationflow_manifest_cache_lookups_total",
			Help: "Manifest cache lookups, by result (hit, miss, expired)",
		},
		[]string{"result"},
	)
	cacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "translationflow_manifest_cache_invalidations_total",
		Help: "Manifest cache invalidations",
	})
)

// Cache holds resolved file lists per branch with a time to live.
//
// Each Invalidate bumps the branch generation. Writers that started a read
// before an invalidation use SetIfGeneration so they cannot repopulate the
// cache with content that predates the commit that invalidated it.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	gens    map[string]uint64
}

type cacheEntry struct {
	files   []ResolvedFileEntry
	expires time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the default time to live. Non-positive values are ignored.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache returns an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		ttl:     DefaultTTL,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
		gens:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the default time to live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns a copy of the unexpired entries cached for branch.
func (c *Cache) Get(branch string) ([]ResolvedFileEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[branch]
	if !ok {
		cacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, branch)
		cacheLookups.WithLabelValues("expired").Inc()
		return nil, false
	}
	cacheLookups.WithLabelValues("hit").Inc()
	return cloneEntries(e.files), true
}

// Set caches files for branch. A non-positive ttl uses the cache default.
func (c *Cache) Set(branch string, files []ResolvedFileEntry, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(branch, files, ttl)
}

// SetIfGeneration caches files only if branch has not been invalidated since
// gen was observed, and reports whether it did.
func (c *Cache) SetIfGeneration(branch string, gen uint64, files []ResolvedFileEntry, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[branch] != gen {
		return false
	}
	c.store(branch, files, ttl)
	return true
}

// Generation returns the number of times branch has been invalidated.
func (c *Cache) Generation(branch string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[branch]
}

// Invalidate drops the entry for branch. It is a no-op if nothing is cached,
// but always advances the generation.
func (c *Cache) Invalidate(branch string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, branch)
	c.gens[branch]++
	cacheInvalidations.Inc()
}

// Prune removes every expired entry and returns how many were removed.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for branch, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, branch)
			n++
		}
	}
	return n
}

// Len returns the number of cached branches, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) store(branch string, files []ResolvedFileEntry, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.entries[branch] = cacheEntry{
		files:   cloneEntries(files),
		expires: c.now().Add(ttl),
	}
}

func cloneEntries(in []ResolvedFileEntry) []ResolvedFileEntry {
	out := slices.Clone(in)
	for i := range out {
		out[i].GameFolderPaths = maps.Clone(out[i].GameFolderPaths)
	}
	return out
}
