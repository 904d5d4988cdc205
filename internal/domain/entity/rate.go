package entity

import (
	"time"
)

// Source identifies which rate service produced the data currently stored.
type Source string

const (
	// SourceNone means no fetch has ever succeeded.
	SourceNone Source = "none"
	// SourcePrimary is the authenticated primary rate service.
	SourcePrimary Source = "primary"
	// SourceFallback is the public fallback rate service.
	SourceFallback Source = "fallback"
)

// ExchangeRate represents one directed conversion factor valid for a stated
// calendar date. It is immutable once created; a later fetch for the same
// base replaces it, never mutates it.
type ExchangeRate struct {
	Base       string    `json:"base"`
	Target     string    `json:"target"`
	Rate       float64   `json:"rate"`
	Date       time.Time `json:"date"`
	SourceDate time.Time `json:"source_date,omitempty"`
}

// RateSet is a collection of rates sharing the same base currency, with at
// most one entry per target. A later fetch for the same base fully replaces
// the prior set; sets are never merged.
type RateSet struct {
	Base  string         `json:"base"`
	Rates []ExchangeRate `json:"rates"`
}

// NewRateSet builds a set for base, keeping the last rate seen for each
// target so the uniqueness invariant holds regardless of input.
func NewRateSet(base string, rates []ExchangeRate) RateSet {
	seen := make(map[string]int, len(rates))
	out := make([]ExchangeRate, 0, len(rates))

	for _, r := range rates {
		if idx, ok := seen[r.Target]; ok {
			out[idx] = r
			continue
		}
		seen[r.Target] = len(out)
		out = append(out, r)
	}

	return RateSet{Base: base, Rates: out}
}

// Lookup returns the rate for the given target currency, if present.
func (s RateSet) Lookup(target string) (ExchangeRate, bool) {
	for _, r := range s.Rates {
		if r.Target == target {
			return r, true
		}
	}
	return ExchangeRate{}, false
}

// Empty reports whether the set holds no rates. An empty set means
// "rate unknown", never "rate of zero".
func (s RateSet) Empty() bool {
	return len(s.Rates) == 0
}

// LatestDate returns the most recent rate date in the set.
func (s RateSet) LatestDate() (time.Time, bool) {
	var latest time.Time
	for _, r := range s.Rates {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	return latest, !latest.IsZero()
}

// FetchMetadata records the outcome of the most recent successful fetch,
// independent of which base currency it concerned.
type FetchMetadata struct {
	LastFetch time.Time `json:"last_fetch"`
	RateDate  time.Time `json:"rate_date"`
	Source    Source    `json:"source"`
	Online    bool      `json:"online"`
}

// NeverFetched reports whether no fetch has ever succeeded.
func (m FetchMetadata) NeverFetched() bool {
	return m.LastFetch.IsZero()
}
