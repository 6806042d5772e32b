package entity

import "time"

// Sticker is a single applied sticker slot on an item.
type Sticker struct {
	Slot      int     `json:"slot"`
	StickerID int     `json:"stickerId"`
	Wear      *float64 `json:"wear,omitempty"`
	Name      string  `json:"name,omitempty"`
}

// Keychain is a single applied keychain/charm slot on an item.
type Keychain struct {
	Slot       int    `json:"slot"`
	KeychainID int    `json:"keychainId"`
	Pattern    int    `json:"pattern,omitempty"`
	Name       string `json:"name,omitempty"`
}

// DecoratedItem is the fully enriched response record for an inspect
// request: the wire-correlated fields from the game coordinator plus any
// Game Data Decorator enrichment.
type DecoratedItem struct {
	A          string     `json:"a"`
	D          string     `json:"d"`
	S          string     `json:"s"`
	M          string     `json:"m"`
	FloatValue float64    `json:"floatvalue"`
	PaintSeed  int        `json:"paintseed"`
	PaintIndex int        `json:"paintindex"`
	DefIndex   int        `json:"defindex,omitempty"`
	Stickers   []Sticker  `json:"stickers"`
	Keychains  []Keychain `json:"keychains"`

	// Enrichment, merged in by the Game Data Decorator.
	ItemName string  `json:"itemName,omitempty"`
	Rarity   string  `json:"rarity,omitempty"`
	MinFloat float64 `json:"minFloat,omitempty"`
	MaxFloat float64 `json:"maxFloat,omitempty"`

	// Delay is the pacing hint computed by the Bot after dispatch; the
	// scheduler consumes it and never serializes it to the caller.
	Delay time.Duration `json:"-"`
}

// RankInfo is externally populated rank metadata for an asset. Read-only
// from this service's perspective; defaults to empty.
type RankInfo struct {
	Rank       int     `json:"rank"`
	RarityName string  `json:"rarityName"`
	Percentile float64 `json:"percentile"`
}

// CachedItem is a Result Cache entry.
type CachedItem struct {
	Item       DecoratedItem
	Price      *uint64
	InsertedAt time.Time
}
