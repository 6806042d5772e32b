package cache_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inspectfleet/internal/domain/entity"
	"inspectfleet/internal/infrastructure/cache"
	"inspectfleet/pkg/tests"
)

func TestResultCache_InsertAndGet(t *testing.T) {
	rq := require.New(t)
	c := cache.New(10, time.Hour)

	price := uint64(500)
	c.Insert(entity.DecoratedItem{A: "1"}, &price)

	got, ok := c.Get("1")
	rq.True(ok)
	rq.Equal("1", got.Item.A)
	rq.Equal(&price, got.Price)
}

func TestResultCache_InsertOverwritesResettingInsertedAt(t *testing.T) {
	rq := require.New(t)

	now := time.Now()
	c := cache.New(10, time.Hour)

	c.Insert(entity.DecoratedItem{A: "1"}, nil)
	first, _ := c.Get("1")

	c.Insert(entity.DecoratedItem{A: "1", ItemName: "updated"}, nil)
	second, ok := c.Get("1")

	rq.True(ok)
	rq.Equal("updated", second.Item.ItemName)
	rq.False(second.InsertedAt.Before(first.InsertedAt))
	rq.True(second.InsertedAt.After(now.Add(-time.Second)))
}

func TestResultCache_EvictsOldestWhenFull(t *testing.T) {
	rq := require.New(t)
	c := cache.New(2, time.Hour)

	c.Insert(entity.DecoratedItem{A: "1"}, nil)
	c.Insert(entity.DecoratedItem{A: "2"}, nil)
	c.Insert(entity.DecoratedItem{A: "3"}, nil)

	_, ok := c.Get("1")
	rq.False(ok, "oldest entry should have been evicted")

	_, ok = c.Get("2")
	rq.True(ok)

	_, ok = c.Get("3")
	rq.True(ok)
}

func TestResultCache_UpdatePriceNoopIfAbsent(t *testing.T) {
	rq := require.New(t)
	c := cache.New(10, time.Hour)

	c.UpdatePrice("missing", 10)
	_, ok := c.Get("missing")
	rq.False(ok)
}

func TestResultCache_LookupsDoNotCheckTTLInline(t *testing.T) {
	rq := require.New(t)
	c := cache.New(10, time.Millisecond)

	c.Insert(entity.DecoratedItem{A: "1"}, nil)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("1")
	rq.True(ok, "Get must not expire entries inline; only CleanupExpired removes them")

	removed := c.CleanupExpired()
	rq.Equal(1, removed)

	_, ok = c.Get("1")
	rq.False(ok)
}

func TestResultCache_RankSideTableHasNoTTL(t *testing.T) {
	rq := require.New(t)
	c := cache.New(10, time.Nanosecond)

	c.SetRank("1", entity.RankInfo{Rank: 3})
	c.CleanupExpired()

	rq.Equal(3, c.GetRank("1").Rank)
}

// TestResultCache_GetEchoesWhateverWasLastInserted is a property check:
// regardless of whether a submitted price was present, Get on a live key
// must always return exactly what the most recent Insert wrote.
func TestResultCache_GetEchoesWhateverWasLastInserted(t *testing.T) {
	rq := require.New(t)
	random := tests.NewRandomizer()
	c := cache.New(50, time.Hour)

	for i := 0; i < 50; i++ {
		key := strconv.Itoa(i)

		var price *uint64
		if random.Bool() {
			p := uint64(i)
			price = &p
		}

		c.Insert(entity.DecoratedItem{A: key}, price)

		got, ok := c.Get(key)
		rq.True(ok)
		rq.Equal(price, got.Price)
	}
}
