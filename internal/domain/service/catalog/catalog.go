// Package catalog implements the Game Data Decorator: a periodically
// refreshed, in-memory snapshot of static item/sticker/keychain metadata
// that annotate() merges into a DecoratedItem.
//
// Grounded on the teacher's GiftService.SyncCatalog: fetch from an
// external source into a snapshot, hold it behind a mutex, log failure
// without surfacing it to callers and keep serving the prior snapshot.
package catalog

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"inspectfleet/internal/domain/entity"
	"inspectfleet/internal/infrastructure/persistence"
	"inspectfleet/pkg/logx"
)

// Repository is the read side of the catalog's backing store.
type Repository interface {
	LoadItems(ctx context.Context) (map[string]persistence.CatalogEntry, error)
	LoadStickers(ctx context.Context) (map[int]persistence.NameRarity, error)
	LoadKeychains(ctx context.Context) (map[int]persistence.NameRarity, error)
}

type snapshot struct {
	items     map[string]persistence.CatalogEntry
	stickers  map[int]persistence.NameRarity
	keychains map[int]persistence.NameRarity
}

// Decorator holds the current snapshot and enriches DecoratedItems.
type Decorator struct {
	repo Repository
	log  *slog.Logger

	mu   sync.RWMutex
	snap snapshot
}

func New(repo Repository, log *slog.Logger) *Decorator {
	return &Decorator{
		repo: repo,
		log:  log,
		snap: snapshot{
			items:     map[string]persistence.CatalogEntry{},
			stickers:  map[int]persistence.NameRarity{},
			keychains: map[int]persistence.NameRarity{},
		},
	}
}

// Refresh reloads the snapshot from the repository. Failure is logged and
// non-fatal: the prior snapshot continues to serve.
func (d *Decorator) Refresh(ctx context.Context) {
	items, err := d.repo.LoadItems(ctx)
	if err != nil {
		d.log.Error("catalog.Refresh: LoadItems", logx.Error(err))

		return
	}

	stickers, err := d.repo.LoadStickers(ctx)
	if err != nil {
		d.log.Error("catalog.Refresh: LoadStickers", logx.Error(err))

		return
	}

	keychains, err := d.repo.LoadKeychains(ctx)
	if err != nil {
		d.log.Error("catalog.Refresh: LoadKeychains", logx.Error(err))

		return
	}

	d.mu.Lock()
	d.snap = snapshot{items: items, stickers: stickers, keychains: keychains}
	d.mu.Unlock()

	d.log.Info("catalog refreshed", slog.Int("items", len(items)), slog.Int("stickers", len(stickers)), slog.Int("keychains", len(keychains)))
}

// Annotate enriches item in place using the (defindex, paintindex) and
// sticker/keychain keys.
func (d *Decorator) Annotate(item *entity.DecoratedItem) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	key := strconv.Itoa(item.DefIndex) + ":" + strconv.Itoa(item.PaintIndex)

	if entry, ok := d.snap.items[key]; ok {
		item.ItemName = entry.ItemName
		item.Rarity = entry.Rarity
		item.MinFloat = entry.MinFloat
		item.MaxFloat = entry.MaxFloat
	}

	for i := range item.Stickers {
		if nr, ok := d.snap.stickers[item.Stickers[i].StickerID]; ok {
			item.Stickers[i].Name = nr.Name
		}
	}

	for i := range item.Keychains {
		if nr, ok := d.snap.keychains[item.Keychains[i].KeychainID]; ok {
			item.Keychains[i].Name = nr.Name
		}
	}
}
