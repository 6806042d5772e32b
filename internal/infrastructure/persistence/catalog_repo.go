// Package persistence holds the Postgres-backed repositories feeding the
// Game Data Decorator's static catalog snapshot. Adapted from the
// teacher's GiftTypeRepository (sqlx + pgx, withTx transaction helper,
// schema<->domain mapping structs).
package persistence

import (
	"context"
	"strconv"

	"github.com/jmoiron/sqlx"

	"inspectfleet/internal/domain"
	"inspectfleet/pkg/errcodes"
	"inspectfleet/pkg/lox"
)

// gameItemSchema is the row shape of the game_catalog table, keyed by
// (defindex, paintindex).
type gameItemSchema struct {
	DefIndex   int     `db:"defindex"`
	PaintIndex int     `db:"paintindex"`
	ItemName   string  `db:"item_name"`
	Rarity     string  `db:"rarity"`
	MinFloat   float64 `db:"min_float"`
	MaxFloat   float64 `db:"max_float"`
}

type stickerSchema struct {
	StickerID int    `db:"sticker_id"`
	Name      string `db:"name"`
	Rarity    string `db:"rarity"`
}

type keychainSchema struct {
	KeychainID int    `db:"keychain_id"`
	Name       string `db:"name"`
	Rarity     string `db:"rarity"`
}

// CatalogEntry is the decorator-facing view of a gameItemSchema row.
type CatalogEntry struct {
	ItemName string
	Rarity   string
	MinFloat float64
	MaxFloat float64
}

// NameRarity is the decorator-facing view of a sticker/keychain row.
type NameRarity struct {
	Name   string
	Rarity string
}

type CatalogRepository struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// LoadItems fetches the full game_catalog snapshot keyed "defindex:paintindex".
func (r *CatalogRepository) LoadItems(ctx context.Context) (map[string]CatalogEntry, error) {
	const query = `SELECT defindex, paintindex, item_name, rarity, min_float, max_float FROM game_catalog`

	var rows []gameItemSchema
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to load game catalog")
	}

	byKey := lox.FilterAssociate(rows, func(row gameItemSchema) (string, bool) {
		return itemKey(row.DefIndex, row.PaintIndex), true
	})

	out := make(map[string]CatalogEntry, len(byKey))
	for key, row := range byKey {
		out[key] = CatalogEntry{ItemName: row.ItemName, Rarity: row.Rarity, MinFloat: row.MinFloat, MaxFloat: row.MaxFloat}
	}

	return out, nil
}

// LoadStickers fetches the full sticker_catalog snapshot keyed by stickerId.
func (r *CatalogRepository) LoadStickers(ctx context.Context) (map[int]NameRarity, error) {
	const query = `SELECT sticker_id, name, rarity FROM sticker_catalog`

	var rows []stickerSchema
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to load sticker catalog")
	}

	byID := lox.FilterAssociate(rows, func(row stickerSchema) (int, bool) {
		return row.StickerID, true
	})

	out := make(map[int]NameRarity, len(byID))
	for id, row := range byID {
		out[id] = NameRarity{Name: row.Name, Rarity: row.Rarity}
	}

	return out, nil
}

// LoadKeychains fetches the full keychain_catalog snapshot keyed by keychainId.
func (r *CatalogRepository) LoadKeychains(ctx context.Context) (map[int]NameRarity, error) {
	const query = `SELECT keychain_id, name, rarity FROM keychain_catalog`

	var rows []keychainSchema
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to load keychain catalog")
	}

	byID := lox.FilterAssociate(rows, func(row keychainSchema) (int, bool) {
		return row.KeychainID, true
	})

	out := make(map[int]NameRarity, len(byID))
	for id, row := range byID {
		out[id] = NameRarity{Name: row.Name, Rarity: row.Rarity}
	}

	return out, nil
}

func itemKey(defIndex, paintIndex int) string {
	return strconv.Itoa(defIndex) + ":" + strconv.Itoa(paintIndex)
}

// UpsertItem inserts or refreshes one game_catalog row. Used by the
// upstream-fetch seeding path; the periodic refresh itself only reads.
func (r *CatalogRepository) UpsertItem(ctx context.Context, defIndex, paintIndex int, itemName, rarity string, minFloat, maxFloat float64) error {
	const query = `
		INSERT INTO game_catalog (defindex, paintindex, item_name, rarity, min_float, max_float)
		VALUES (:defindex, :paintindex, :item_name, :rarity, :min_float, :max_float)
		ON CONFLICT (defindex, paintindex) DO UPDATE SET
			item_name = EXCLUDED.item_name,
			rarity = EXCLUDED.rarity,
			min_float = EXCLUDED.min_float,
			max_float = EXCLUDED.max_float`

	_, err := r.db.NamedExecContext(ctx, query, gameItemSchema{
		DefIndex:   defIndex,
		PaintIndex: paintIndex,
		ItemName:   itemName,
		Rarity:     rarity,
		MinFloat:   minFloat,
		MaxFloat:   maxFloat,
	})
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to upsert game catalog row")
	}

	return nil
}

// UpsertSticker inserts or refreshes one sticker_catalog row.
func (r *CatalogRepository) UpsertSticker(ctx context.Context, stickerID int, name, rarity string) error {
	const query = `
		INSERT INTO sticker_catalog (sticker_id, name, rarity)
		VALUES (:sticker_id, :name, :rarity)
		ON CONFLICT (sticker_id) DO UPDATE SET name = EXCLUDED.name, rarity = EXCLUDED.rarity`

	_, err := r.db.NamedExecContext(ctx, query, stickerSchema{StickerID: stickerID, Name: name, Rarity: rarity})
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to upsert sticker catalog row")
	}

	return nil
}

// UpsertKeychain inserts or refreshes one keychain_catalog row.
func (r *CatalogRepository) UpsertKeychain(ctx context.Context, keychainID int, name, rarity string) error {
	const query = `
		INSERT INTO keychain_catalog (keychain_id, name, rarity)
		VALUES (:keychain_id, :name, :rarity)
		ON CONFLICT (keychain_id) DO UPDATE SET name = EXCLUDED.name, rarity = EXCLUDED.rarity`

	_, err := r.db.NamedExecContext(ctx, query, keychainSchema{KeychainID: keychainID, Name: name, Rarity: rarity})
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to upsert keychain catalog row")
	}

	return nil
}
