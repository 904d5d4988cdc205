// Package service internal/application/service/rate_service.go
package service

import (
	"context"
	"time"

	"github.com/offlinefx/offlinefx/internal/domain/entity"
	"github.com/offlinefx/offlinefx/internal/domain/repository"
	domainservice "github.com/offlinefx/offlinefx/internal/domain/service"
	"github.com/offlinefx/offlinefx/internal/infrastructure/logger"
	"github.com/offlinefx/offlinefx/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// RateSource is one step of the ordered fallback chain. Adding, removing or
// reordering sources is a data change, not a control-flow rewrite.
type RateSource struct {
	Source   entity.Source
	Provider domainservice.RateProvider
}

// RateService is the retrieval orchestrator. It obtains a fresh rate set for
// a base currency via the ordered source chain, short-circuiting on the
// first success, and updates the rate store on success. It never returns an
// error to its caller; the worst outcome is degraded freshness.
type RateService struct {
	store   repository.RateStore
	sources []RateSource
	logger  logger.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
	now     func() time.Time
}

// NewRateService creates the orchestrator over an ordered source chain.
func NewRateService(store repository.RateStore, sources []RateSource, log logger.Logger, m *metrics.Metrics) *RateService {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &RateService{
		store:   store,
		sources: sources,
		logger:  log,
		metrics: m,
		now:     time.Now,
	}
}

// Rates returns the rate set for a base currency, fetching only when the
// stored data is stale or absent. force triggers a fetch regardless.
func (s *RateService) Rates(ctx context.Context, base string, force bool) entity.RateSet {
	if !force && !IsStale(s.store.Metadata(), s.now()) {
		if set, ok := s.store.Get(ctx, base); ok {
			return set
		}
	}
	return s.FetchRates(ctx, base)
}

// FetchRates walks the source chain and always returns the best available
// data: a fresh set on success, the prior stored set when every source
// fails, or an empty set when nothing was ever cached. An empty set means
// "rate unknown", never a zero rate. Concurrent calls for the same base are
// collapsed onto one in-flight fetch.
func (s *RateService) FetchRates(ctx context.Context, base string) entity.RateSet {
	// The result is shared across collapsed callers, so the fetch must
	// not die with whichever caller happened to start it.
	fetchCtx := context.WithoutCancel(ctx)
	v, _, _ := s.group.Do(base, func() (interface{}, error) {
		return s.fetchRates(fetchCtx, base), nil
	})
	return v.(entity.RateSet)
}

func (s *RateService) fetchRates(ctx context.Context, base string) entity.RateSet {
	for _, src := range s.sources {
		set, err := src.Provider.FetchRates(ctx, base)
		if err != nil {
			s.metrics.ObserveFetch(string(src.Source), "failure")
			s.logger.Warn("Rate source failed, advancing chain", map[string]interface{}{
				"source": string(src.Source),
				"base":   base,
				"error":  err.Error(),
			})
			continue
		}

		s.metrics.ObserveFetch(string(src.Source), "success")

		rateDate, _ := set.LatestDate()
		meta := entity.FetchMetadata{
			LastFetch: s.now(),
			RateDate:  rateDate,
			Source:    src.Source,
			Online:    true,
		}

		if err := s.store.Put(ctx, base, set, meta); err != nil {
			// A persistence failure degrades durability, not the result.
			s.logger.Error("Failed to persist rate set", map[string]interface{}{
				"base":  base,
				"error": err.Error(),
			})
		}

		s.logger.Info("Rates fetched", map[string]interface{}{
			"source": string(src.Source),
			"base":   base,
			"count":  len(set.Rates),
		})
		return set
	}

	if prior, ok := s.store.Get(ctx, base); ok {
		s.logger.Warn("All rate sources failed, serving stored rates", map[string]interface{}{
			"base": base,
		})
		return prior
	}

	s.logger.Warn("All rate sources failed and nothing is cached", map[string]interface{}{
		"base": base,
	})
	return entity.NewRateSet(base, nil)
}

// Metadata returns the last known fetch metadata together with the derived
// freshness signals the UI consumes.
func (s *RateService) Metadata() MetadataView {
	meta := s.store.Metadata()
	now := s.now()
	hours, fetched := HoursSinceUpdate(meta, now)

	return MetadataView{
		Metadata:         meta,
		Stale:            IsStale(meta, now),
		HoursSinceUpdate: hours,
		EverFetched:      fetched,
		OfferRefresh:     ShouldOfferRefresh(meta, now),
	}
}

// LatestUpdateDate returns the max rate date among cached entries for a base.
func (s *RateService) LatestUpdateDate(ctx context.Context, base string) (time.Time, bool) {
	return s.store.LatestRateDate(ctx, base)
}

// MetadataView is the freshness state exposed upward to the UI.
type MetadataView struct {
	Metadata         entity.FetchMetadata
	Stale            bool
	HoursSinceUpdate float64
	EverFetched      bool
	OfferRefresh     bool
}
