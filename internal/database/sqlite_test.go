package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/property-crawler/internal/models"
)

func setupSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "listings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testListing(name, slug string) *models.Listing {
	l := models.NewListing(models.DefaultListingDefaults(), models.DefaultListingReferences())
	l.Name = name
	l.Slug = slug
	l.Address = "DHA Phase 5, Lahore"
	l.Description = name
	l.Price = 25_000_000
	l.PriceText = "Rs 2.5 Crore"
	l.SourceURL = "https://www.example.com/houses"
	return l
}

func TestSQLiteStore_InsertListing(t *testing.T) {
	ctx := context.Background()
	store := setupSQLite(t)

	t.Run("stores listing and assigns id", func(t *testing.T) {
		l := testListing("Corner House", "corner-house-1a2b3c4d")
		require.NoError(t, store.InsertListing(ctx, l))
		assert.Positive(t, l.ID)

		listings, err := store.ListBySource(ctx, "https://www.example.com/houses")
		require.NoError(t, err)
		require.Len(t, listings, 1)
		assert.Equal(t, "Corner House", listings[0].Name)
		assert.Equal(t, "For Sale", listings[0].Purpose)
		assert.Equal(t, 3, listings[0].Bedrooms)
		assert.Equal(t, int64(29), listings[0].PropertyTypeID)
		assert.InDelta(t, 25_000_000, listings[0].Price, 0.01)
		assert.Equal(t, "Rs 2.5 Crore", listings[0].PriceText)
	})

	t.Run("price on request is stored as text", func(t *testing.T) {
		l := testListing("On Request", "on-request-9f8e7d6c")
		l.Price = 0
		l.PriceText = "Price on call"
		require.NoError(t, store.InsertListing(ctx, l))

		listings, err := store.ListBySource(ctx, "https://www.example.com/houses")
		require.NoError(t, err)
		require.Len(t, listings, 2)
		assert.Zero(t, listings[1].Price)
		assert.Equal(t, "Price on call", listings[1].PriceText)
	})

	t.Run("duplicate slug fails without partial rows", func(t *testing.T) {
		before, err := store.CountListings(ctx)
		require.NoError(t, err)

		err = store.InsertListing(ctx, testListing("Another", "corner-house-1a2b3c4d"))
		require.Error(t, err)

		after, err := store.CountListings(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("constraint violation rolls back", func(t *testing.T) {
		l := testListing("Free", "free-00000000")
		l.PriceText = ""

		err := store.InsertListing(ctx, l)
		require.Error(t, err)

		count, err := store.CountListings(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}

func TestSQLiteStore_CountBySource(t *testing.T) {
	ctx := context.Background()
	store := setupSQLite(t)

	second := testListing("Page Two", "page-two-22222222")
	second.SourceURL = "https://www.example.com/houses?page=2"
	require.NoError(t, store.InsertListing(ctx, testListing("One", "one-11111111")))
	require.NoError(t, store.InsertListing(ctx, testListing("Two", "two-11111111")))
	require.NoError(t, store.InsertListing(ctx, second))

	counts, err := store.CountBySource(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"https://www.example.com/houses":        2,
		"https://www.example.com/houses?page=2": 1,
	}, counts)
}

func TestOpenSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "listings.db")

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.InsertListing(ctx, testListing("Kept", "kept-12345678")))
	require.NoError(t, store.Close())

	store, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	count, err := store.CountListings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, path, store.Path())
}
