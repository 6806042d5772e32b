package persistence_test

import (
	"context"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"inspectfleet/internal/infrastructure/persistence"
	"inspectfleet/pkg/dbtest"
)

// TestCatalogRepository_UpsertAndLoadRoundTrip is skipped unless
// TEST_POSTGRES_DSN points at a disposable database: it migrates the
// catalog tables, upserts rows, then reads the same snapshot back
// through CatalogRepository's Load* methods.
func TestCatalogRepository_UpsertAndLoadRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping Postgres-backed catalog repository test")
	}

	rq := require.New(t)
	ctx := context.Background()

	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	rq.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	rq.NoError(dbtest.MigrateFromFile(db, "../../../migrations/0001_game_catalog.sql"))

	repo := persistence.NewCatalogRepository(db)

	rq.NoError(repo.UpsertItem(ctx, 7, 0, "AK-47 | Redline", "Classified", 0.0, 1.0))
	rq.NoError(repo.UpsertSticker(ctx, 42, "Katowice 2014", "Covert"))
	rq.NoError(repo.UpsertKeychain(ctx, 9, "Lil Squirt", "Rare Special"))

	items, err := repo.LoadItems(ctx)
	rq.NoError(err)
	entry, ok := items["7:0"]
	rq.True(ok)
	rq.Equal("AK-47 | Redline", entry.ItemName)

	stickers, err := repo.LoadStickers(ctx)
	rq.NoError(err)
	rq.Equal("Katowice 2014", stickers[42].Name)

	keychains, err := repo.LoadKeychains(ctx)
	rq.NoError(err)
	rq.Equal("Lil Squirt", keychains[9].Name)

	rq.NoError(repo.UpsertItem(ctx, 7, 0, "AK-47 | Redline", "Classified", 0.0, 0.5))
	items, err = repo.LoadItems(ctx)
	rq.NoError(err)
	rq.InDelta(0.5, items["7:0"].MaxFloat, 0.0001, "upsert must overwrite, not duplicate, the row")
}
