// Package cache implements the Result Cache: a bounded, FIFO-evicted,
// TTL-cleaned store mapping asset id to the last known decorated item,
// plus a side-table of externally populated rank metadata.
//
// Grounded on the mutex-guarded map style of the teacher's
// domain/service/gift.GiftService.processedCache, but with bespoke
// eviction/TTL semantics: github.com/patrickmn/go-cache's lazy
// TTL-on-read does not fit the spec's requirement that lookups never
// check expiry inline and that eviction/cleanup are the only removal
// paths.
package cache

import (
	"sync"
	"time"

	"inspectfleet/internal/domain/entity"
)

const (
	DefaultMaxEntries = 2000
	DefaultTTL        = time.Hour
	DefaultCleanupMin = 15 * time.Minute
)

type entryNode struct {
	assetID string
	item    entity.CachedItem
}

// ResultCache is safe for concurrent use.
type ResultCache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration

	order []string // insertion order, oldest first
	items map[string]*entryNode

	ranks map[string]entity.RankInfo

	now func() time.Time
}

func New(maxEntries int, ttl time.Duration) *ResultCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &ResultCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		items:      make(map[string]*entryNode),
		ranks:      make(map[string]entity.RankInfo),
		now:        time.Now,
	}
}

// GetMany looks up assetIds. Absent entries are simply omitted from the
// result map; lookups never check TTL — only CleanupExpired removes
// stale entries.
func (c *ResultCache) GetMany(assetIDs []string) map[string]entity.CachedItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]entity.CachedItem, len(assetIDs))

	for _, id := range assetIDs {
		if node, ok := c.items[id]; ok {
			out[id] = node.item
		}
	}

	return out
}

// Get is the single-key counterpart of GetMany.
func (c *ResultCache) Get(assetID string) (entity.CachedItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[assetID]
	if !ok {
		return entity.CachedItem{}, false
	}

	return node.item, true
}

// Insert overwrites any existing entry for item.A, resetting its
// insertedAt, and evicts the oldest entry first if the cache is at
// capacity.
func (c *ResultCache) Insert(item entity.DecoratedItem, price *uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	assetID := item.A

	if _, exists := c.items[assetID]; !exists && len(c.items) >= c.maxEntries {
		c.evictOldestLocked()
	}

	if _, exists := c.items[assetID]; exists {
		c.removeFromOrderLocked(assetID)
	}

	c.items[assetID] = &entryNode{
		assetID: assetID,
		item: entity.CachedItem{
			Item:       item,
			Price:      price,
			InsertedAt: c.now(),
		},
	}
	c.order = append(c.order, assetID)
}

// UpdatePrice is a no-op if the asset is not cached.
func (c *ResultCache) UpdatePrice(assetID string, price uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[assetID]; ok {
		node.item.Price = &price
	}
}

// GetRank returns the externally populated rank side-table entry for
// assetID, or the zero value if none exists. The rank table has no TTL
// and is never written by this service.
func (c *ResultCache) GetRank(assetID string) entity.RankInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ranks[assetID]
}

// SetRank is exposed for the external rank-population pipeline; the
// inspect-resolution path never calls it.
func (c *ResultCache) SetRank(assetID string, rank entity.RankInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ranks[assetID] = rank
}

// CleanupExpired removes entries older than the configured TTL. Intended
// to be called on a timer of at least 15 minutes; it is the sole removal
// path other than capacity eviction.
func (c *ResultCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.ttl)

	removed := 0
	kept := c.order[:0:0] //nolint:staticcheck // fresh backing array, avoid aliasing c.order

	for _, id := range c.order {
		node, ok := c.items[id]
		if !ok {
			continue
		}

		if node.item.InsertedAt.Before(cutoff) {
			delete(c.items, id)
			removed++

			continue
		}

		kept = append(kept, id)
	}

	c.order = kept

	return removed
}

// Size reports the current entry count.
func (c *ResultCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

func (c *ResultCache) evictOldestLocked() {
	if len(c.order) == 0 {
		return
	}

	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.items, oldest)
}

func (c *ResultCache) removeFromOrderLocked(assetID string) {
	for i, id := range c.order {
		if id == assetID {
			c.order = append(c.order[:i], c.order[i+1:]...)

			return
		}
	}
}
