package database

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekerdev/vehicle-ingest/internal/models"
)

// setupTestStore opens an isolated store against the database named by
// TEST_DB_* env vars. Tests are skipped when no test database is
// configured.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping store integration tests")
	}

	port, _ := strconv.Atoi(os.Getenv("TEST_DB_PORT"))
	if port == 0 {
		port = 5432
	}

	ctx := context.Background()
	store, err := Open(ctx, Config{
		Host:     host,
		Port:     port,
		User:     envOr("TEST_DB_USER", "postgres"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		Database: envOr("TEST_DB_NAME", "vehicle_ingest_test"),
		MaxConns: 4,
	})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.EnsureSchema(ctx))
	_, err = store.pool.Exec(ctx, `TRUNCATE listings`)
	require.NoError(t, err)

	return store
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testListing(no string) *models.Listing {
	return &models.Listing{
		ListingNo:    no,
		Title:        "2021 BMW X5 xDrive40i",
		URL:          "https://www.sahibinden.com/ilan/" + no,
		Brand:        "bmw",
		Model:        "x5",
		ModelDetail:  "xDrive40i",
		Price:        4250000,
		Year:         2021,
		Odometer:     48000,
		Color:        "Siyah",
		FuelType:     "Benzin",
		Transmission: "Otomatik",
		PaintedParts: []string{"Sol ön çamurluk boyalı"},
		SwappedParts: []string{},
		DamageScore:  5,
		Province:     "İstanbul",
		District:     "Kadıköy",
	}
}

func TestUpsertListingIdempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	l := testListing("1001")

	inserted, err := store.UpsertListing(ctx, l)
	require.NoError(t, err)
	assert.True(t, inserted)
	firstSeen := l.FirstSeen

	again, err := store.UpsertListing(ctx, testListing("1001"))
	require.NoError(t, err)
	assert.False(t, again)

	stored, err := store.GetListing(ctx, "1001")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, l.Title, stored.Title)
	assert.Equal(t, l.Price, stored.Price)
	assert.Equal(t, l.PaintedParts, stored.PaintedParts)
	assert.WithinDuration(t, firstSeen, stored.FirstSeen, time.Second)

	var count int
	require.NoError(t, store.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM listings WHERE listing_no = $1`, "1001").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestUpsertPreservesAnnotation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertListing(ctx, testListing("1002"))
	require.NoError(t, err)

	ann := models.Annotation{PredictedPrice: 4600000, IsDeal: true, PriceDelta: 350000}
	require.NoError(t, store.UpdateAnnotation(ctx, "1002", ann))

	rescraped := testListing("1002")
	rescraped.Price = 4100000
	_, err = store.UpsertListing(ctx, rescraped)
	require.NoError(t, err)

	stored, err := store.GetListing(ctx, "1002")
	require.NoError(t, err)
	require.NotNil(t, stored.Annotation)
	assert.Equal(t, 4600000, stored.Annotation.PredictedPrice)
	assert.True(t, stored.Annotation.IsDeal)
	assert.Equal(t, 350000, stored.Annotation.PriceDelta)
	assert.Equal(t, 4100000, stored.Price)
}

func TestFindMissingAnnotation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertListing(ctx, testListing("2001"))
	require.NoError(t, err)
	_, err = store.UpsertListing(ctx, testListing("2002"))
	require.NoError(t, err)

	require.NoError(t, store.UpdateAnnotation(ctx, "2001",
		models.Annotation{PredictedPrice: 4000000}))

	missing, err := store.FindMissingAnnotation(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "2002", missing[0].ListingNo)

	// Re-queryable: a second call sees the same snapshot.
	missingAgain, err := store.FindMissingAnnotation(ctx)
	require.NoError(t, err)
	assert.Len(t, missingAgain, 1)
}

func TestReconcileDuplicates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Duplicates predate the unique identity index, so recreate that
	// legacy state directly.
	_, err := store.pool.Exec(ctx, `DROP INDEX IF EXISTS listings_listing_no_key`)
	require.NoError(t, err)
	defer store.pool.Exec(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS listings_listing_no_key ON listings (listing_no)`)

	base := time.Now().Add(-72 * time.Hour)
	for i := 0; i < 3; i++ {
		_, err := store.pool.Exec(ctx, `
			INSERT INTO listings (listing_no, title, url, updated_at)
			VALUES ($1, $2, $3, $4)`,
			"3001", fmt.Sprintf("copy %d", i),
			fmt.Sprintf("https://www.sahibinden.com/ilan/3001-%d", i),
			base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}

	removed, err := store.ReconcileDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	survivor, err := store.GetListing(ctx, "3001")
	require.NoError(t, err)
	require.NotNil(t, survivor)
	assert.Equal(t, "copy 2", survivor.Title)
}

func TestHousekeepOnLegacyTable(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// A legacy url-keyed table: duplicate listing numbers and no unique
	// identity index. The maintenance sequence is table, housekeeping,
	// then full schema; creating the unique index first would fail over
	// the duplicates.
	_, err := store.pool.Exec(ctx, `DROP INDEX IF EXISTS listings_listing_no_key`)
	require.NoError(t, err)

	base := time.Now().Add(-3 * time.Hour)
	for i := 0; i < 3; i++ {
		_, err := store.pool.Exec(ctx, `
			INSERT INTO listings (listing_no, title, url, updated_at)
			VALUES ($1, $2, $3, $4)`,
			"6001", fmt.Sprintf("copy %d", i),
			fmt.Sprintf("https://www.sahibinden.com/ilan/6001-%d", i),
			base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}
	_, err = store.pool.Exec(ctx, `
		INSERT INTO listings (listing_no, title, url, updated_at)
		VALUES ($1, $2, $3, $4)`,
		"6002", "stale", "https://www.sahibinden.com/ilan/6002",
		time.Now().Add(-45*24*time.Hour))
	require.NoError(t, err)

	reconciled, pruned, err := store.Housekeep(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, reconciled)
	assert.Equal(t, 1, pruned)

	// The unique index is creatable now that the table is deduplicated.
	require.NoError(t, store.EnsureSchema(ctx))

	survivor, err := store.GetListing(ctx, "6001")
	require.NoError(t, err)
	require.NotNil(t, survivor)
	assert.Equal(t, "copy 2", survivor.Title)

	gone, err := store.GetListing(ctx, "6002")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestPruneOlderThan(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertListing(ctx, testListing("4001"))
	require.NoError(t, err)

	_, err = store.pool.Exec(ctx,
		`UPDATE listings SET updated_at = NOW() - INTERVAL '45 days' WHERE listing_no = $1`, "4001")
	require.NoError(t, err)

	_, err = store.UpsertListing(ctx, testListing("4002"))
	require.NoError(t, err)

	removed, err := store.PruneOlderThan(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	gone, err := store.GetListing(ctx, "4001")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestStats(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertListing(ctx, testListing("5001"))
	require.NoError(t, err)
	other := testListing("5002")
	other.Brand = "toyota"
	other.Model = "corolla"
	other.Price = 1500000
	_, err = store.UpsertListing(ctx, other)
	require.NoError(t, err)

	require.NoError(t, store.UpdateAnnotation(ctx, "5002",
		models.Annotation{PredictedPrice: 1900000, IsDeal: true, PriceDelta: 400000}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Deals)
	assert.Len(t, stats.ByBrand, 2)
}
