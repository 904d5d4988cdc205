// Package service internal/application/service/freshness.go
package service

import (
	"time"

	"github.com/offlinefx/offlinefx/internal/domain/entity"
)

// refreshAffordanceThreshold is how old data must be before the UI is
// offered a manual refresh control. It never gates automatic cache use.
const refreshAffordanceThreshold = time.Hour

// IsStale reports whether stored rate data should be superseded by a fresh
// fetch. Data is stale when nothing has ever been fetched, or when the UTC
// calendar date of the last fetch differs from the current UTC date. The
// upstream sources publish at most once per business day, so same-day data
// is never re-fetched merely because hours have passed.
func IsStale(meta entity.FetchMetadata, now time.Time) bool {
	if meta.NeverFetched() {
		return true
	}

	fy, fm, fd := meta.LastFetch.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	return fy != ny || fm != nm || fd != nd
}

// HoursSinceUpdate returns the hours elapsed since the last successful
// fetch. The second result is false when nothing has ever been fetched.
func HoursSinceUpdate(meta entity.FetchMetadata, now time.Time) (float64, bool) {
	if meta.NeverFetched() {
		return 0, false
	}
	return now.Sub(meta.LastFetch).Hours(), true
}

// ShouldOfferRefresh reports whether the UI should show a manual refresh
// control. This is a presentation nudge, distinct from IsStale: data fetched
// at 23:59 UTC is "just updated" by this signal yet stale a minute later by
// the calendar-day policy, and both answers are correct for their purpose.
func ShouldOfferRefresh(meta entity.FetchMetadata, now time.Time) bool {
	if meta.NeverFetched() {
		return true
	}
	return now.Sub(meta.LastFetch) > refreshAffordanceThreshold
}
