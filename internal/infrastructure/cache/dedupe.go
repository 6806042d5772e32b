package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Dedupe is a soft, best-effort guard against dispatching more than one
// in-flight request for the same asset id across the fleet (spec's "at
// most one entry in flight per assetId" invariant is explicitly soft).
// Grounded directly on the teacher's GiftService.processedCache, which
// uses the same library for the same purpose: mark-seen with a bounded
// TTL, no persistence, races permitted.
type Dedupe struct {
	store *gocache.Cache
}

func NewDedupe(ttl time.Duration) *Dedupe {
	return &Dedupe{
		store: gocache.New(ttl, ttl/2), //nolint:mnd // cleanup interval half the TTL, same ratio as the teacher
	}
}

// MarkIfAbsent returns true and marks assetID as in-flight if it wasn't
// already tracked; returns false if a dispatch for this asset is already
// believed to be outstanding.
func (d *Dedupe) MarkIfAbsent(assetID string) bool {
	_, found := d.store.Get(assetID)
	if found {
		return false
	}

	d.store.SetDefault(assetID, struct{}{})

	return true
}

// Clear removes the in-flight mark for assetID once its dispatch
// terminates (success, timeout, or error).
func (d *Dedupe) Clear(assetID string) {
	d.store.Delete(assetID)
}
