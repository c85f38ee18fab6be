package rules

import (
	"context"
	"sync"
	"time"

	"finances/internal/cache"
	"finances/internal/core"
)

// CachedSource keeps recently used rule lists in memory. Writers must call
// Invalidate after changing a book's rules.
type CachedSource struct {
	next  RuleSource
	cache *cache.LRUCache[[]core.CategoryRule]

	mu          sync.Mutex
	generations map[string]uint64
}

// NewCachedSource wraps next with an LRU of up to maxBooks rule lists.
func NewCachedSource(next RuleSource, maxBooks int, ttl time.Duration) *CachedSource {
	return &CachedSource{
		next:        next,
		cache:       cache.NewLRUCache[[]core.CategoryRule](maxBooks, ttl),
		generations: make(map[string]uint64),
	}
}

func (c *CachedSource) ListRules(ctx context.Context, bookID string) ([]core.CategoryRule, error) {
	if rules, ok := c.cache.Get(bookID); ok {
		return rules, nil
	}
	gen := c.generation(bookID)
	rules, err := c.next.ListRules(ctx, bookID)
	if err != nil {
		return nil, err
	}

	// A list read before a concurrent Invalidate must not be cached.
	c.mu.Lock()
	if c.generations[bookID] == gen {
		c.cache.Set(bookID, rules)
	}
	c.mu.Unlock()
	return rules, nil
}

// Invalidate drops the cached rules of one book.
func (c *CachedSource) Invalidate(bookID string) {
	c.mu.Lock()
	c.generations[bookID]++
	c.cache.Delete(bookID)
	c.mu.Unlock()
}

func (c *CachedSource) generation(bookID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[bookID]
}

// Cleaner exposes the underlying cache for periodic sweeping.
func (c *CachedSource) Cleaner() cache.Cleaner {
	return c.cache
}
