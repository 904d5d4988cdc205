// Package repository internal/domain/repository/rate_store.go
package repository

import (
	"context"
	"time"

	"github.com/offlinefx/offlinefx/internal/domain/entity"
)

// RateStore defines the interface for persisted exchange rate storage.
// Implementations hold the most recently obtained RateSet per base currency
// plus a single fetch metadata record, and persist both on every Put.
type RateStore interface {
	// Get returns the stored RateSet for a base currency, if any.
	Get(ctx context.Context, base string) (entity.RateSet, bool)

	// Put atomically replaces the RateSet for a base currency and the
	// fetch metadata record, then persists the full snapshot.
	Put(ctx context.Context, base string, set entity.RateSet, meta entity.FetchMetadata) error

	// Metadata returns the last known fetch metadata. A zero LastFetch
	// means no fetch has ever succeeded.
	Metadata() entity.FetchMetadata

	// LatestRateDate returns the max rate date among cached entries for a
	// base currency, or false if nothing is cached for it.
	LatestRateDate(ctx context.Context, base string) (time.Time, bool)
}
