package db

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/offlinefx/offlinefx/internal/domain/entity"
	"github.com/offlinefx/offlinefx/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, dir string) *badger.DB {
	t.Helper()

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	badgerDB, err := badger.Open(opts)
	require.NoError(t, err)
	return badgerDB
}

func testLogger() logger.Logger {
	return logger.NewJSONLogger(nil, logger.ErrorLevel)
}

func TestPutAndGet(t *testing.T) {
	badgerDB := openTestDB(t, t.TempDir())
	defer badgerDB.Close()

	store := NewBadgerRateStore(badgerDB, testLogger())
	ctx := context.Background()

	_, ok := store.Get(ctx, "USD")
	assert.False(t, ok)
	assert.True(t, store.Metadata().NeverFetched())

	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	set := entity.NewRateSet("USD", []entity.ExchangeRate{
		{Base: "USD", Target: "EUR", Rate: 0.85, Date: date},
		{Base: "USD", Target: "GBP", Rate: 0.73, Date: date},
	})
	meta := entity.FetchMetadata{
		LastFetch: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC),
		RateDate:  date,
		Source:    entity.SourcePrimary,
		Online:    true,
	}

	require.NoError(t, store.Put(ctx, "USD", set, meta))

	got, ok := store.Get(ctx, "USD")
	assert.True(t, ok)
	assert.Equal(t, set, got)
	assert.Equal(t, entity.SourcePrimary, store.Metadata().Source)

	latest, ok := store.LatestRateDate(ctx, "USD")
	assert.True(t, ok)
	assert.Equal(t, date, latest)
}

func TestPutReplacesWholeSet(t *testing.T) {
	badgerDB := openTestDB(t, t.TempDir())
	defer badgerDB.Close()

	store := NewBadgerRateStore(badgerDB, testLogger())
	ctx := context.Background()
	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	first := entity.NewRateSet("USD", []entity.ExchangeRate{
		{Base: "USD", Target: "EUR", Rate: 0.85, Date: date},
		{Base: "USD", Target: "GBP", Rate: 0.73, Date: date},
	})
	second := entity.NewRateSet("USD", []entity.ExchangeRate{
		{Base: "USD", Target: "EUR", Rate: 0.86, Date: date},
	})

	require.NoError(t, store.Put(ctx, "USD", first, entity.FetchMetadata{LastFetch: time.Now()}))
	require.NoError(t, store.Put(ctx, "USD", second, entity.FetchMetadata{LastFetch: time.Now()}))

	got, ok := store.Get(ctx, "USD")
	assert.True(t, ok)
	// The replacement is wholesale: GBP from the first set must be gone.
	assert.Len(t, got.Rates, 1)
	_, ok = got.Lookup("GBP")
	assert.False(t, ok)
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	set := entity.NewRateSet("USD", []entity.ExchangeRate{
		{Base: "USD", Target: "EUR", Rate: 0.85, Date: date, SourceDate: date.AddDate(0, 0, -1)},
	})
	meta := entity.FetchMetadata{
		LastFetch: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC),
		RateDate:  date,
		Source:    entity.SourceFallback,
		Online:    true,
	}

	badgerDB := openTestDB(t, dir)
	store := NewBadgerRateStore(badgerDB, testLogger())
	require.NoError(t, store.Put(ctx, "USD", set, meta))
	require.NoError(t, badgerDB.Close())

	// A new store over the same directory must see an identical mapping.
	badgerDB = openTestDB(t, dir)
	defer badgerDB.Close()
	reloaded := NewBadgerRateStore(badgerDB, testLogger())

	got, ok := reloaded.Get(ctx, "USD")
	assert.True(t, ok)
	assert.Equal(t, set, got)
	assert.Equal(t, meta, reloaded.Metadata())
}

func TestNullSnapshotStartsEmptyAndStaysWritable(t *testing.T) {
	badgerDB := openTestDB(t, t.TempDir())
	defer badgerDB.Close()

	// "null" is valid JSON and decodes into a nil map without error.
	err := badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(rateCacheKey), []byte("null"))
	})
	require.NoError(t, err)

	store := NewBadgerRateStore(badgerDB, testLogger())
	ctx := context.Background()

	_, ok := store.Get(ctx, "USD")
	assert.False(t, ok)

	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	set := entity.NewRateSet("USD", []entity.ExchangeRate{
		{Base: "USD", Target: "EUR", Rate: 0.85, Date: date},
	})
	require.NoError(t, store.Put(ctx, "USD", set, entity.FetchMetadata{
		LastFetch: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC),
		Source:    entity.SourcePrimary,
	}))

	got, ok := store.Get(ctx, "USD")
	assert.True(t, ok)
	assert.Equal(t, set, got)
}

func TestMalformedSnapshotStartsEmpty(t *testing.T) {
	badgerDB := openTestDB(t, t.TempDir())
	defer badgerDB.Close()

	err := badgerDB.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(rateCacheKey), []byte("{not json")); err != nil {
			return err
		}
		return txn.Set([]byte(fetchMetadataKey), []byte("also not json"))
	})
	require.NoError(t, err)

	store := NewBadgerRateStore(badgerDB, testLogger())

	_, ok := store.Get(context.Background(), "USD")
	assert.False(t, ok)
	assert.True(t, store.Metadata().NeverFetched())
}
