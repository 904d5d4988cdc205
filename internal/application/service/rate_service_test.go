package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/offlinefx/offlinefx/internal/domain/entity"
	"github.com/offlinefx/offlinefx/internal/infrastructure/logger"
	"github.com/offlinefx/offlinefx/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory RateStore for service tests.
type memStore struct {
	mu    sync.Mutex
	rates map[string]entity.RateSet
	meta  entity.FetchMetadata
	puts  int
}

func newMemStore() *memStore {
	return &memStore{rates: make(map[string]entity.RateSet)}
}

func (s *memStore) Get(ctx context.Context, base string) (entity.RateSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.rates[base]
	return set, ok
}

func (s *memStore) Put(ctx context.Context, base string, set entity.RateSet, meta entity.FetchMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[base] = set
	s.meta = meta
	s.puts++
	return nil
}

func (s *memStore) Metadata() entity.FetchMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

func (s *memStore) LatestRateDate(ctx context.Context, base string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.rates[base]
	if !ok {
		return time.Time{}, false
	}
	return set.LatestDate()
}

// countingProvider is a RateProvider that records how often it was called.
type countingProvider struct {
	calls int32
	set   entity.RateSet
	err   error
	gate  chan struct{} // when non-nil, FetchRates blocks until closed
}

func (p *countingProvider) FetchRates(ctx context.Context, base string) (entity.RateSet, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.gate != nil {
		<-p.gate
	}
	if p.err != nil {
		return entity.RateSet{}, p.err
	}
	return p.set, nil
}

func (p *countingProvider) callCount() int32 {
	return atomic.LoadInt32(&p.calls)
}

func usdSet(rate float64) entity.RateSet {
	return entity.NewRateSet("USD", []entity.ExchangeRate{
		{Base: "USD", Target: "EUR", Rate: rate, Date: time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)},
	})
}

func newTestService(store *memStore, primary, fallback *countingProvider) *RateService {
	log := logger.NewJSONLogger(nil, logger.ErrorLevel)
	return NewRateService(store, []RateSource{
		{Source: entity.SourcePrimary, Provider: primary},
		{Source: entity.SourceFallback, Provider: fallback},
	}, log, nil)
}

func TestFetchRatesChain(t *testing.T) {
	ctx := context.Background()

	t.Run("Primary success never invokes fallback", func(t *testing.T) {
		store := newMemStore()
		primary := &countingProvider{set: usdSet(0.85)}
		fallback := &countingProvider{set: usdSet(0.80)}
		svc := newTestService(store, primary, fallback)

		set := svc.FetchRates(ctx, "USD")

		rate, ok := set.Lookup("EUR")
		assert.True(t, ok)
		assert.Equal(t, 0.85, rate.Rate)
		assert.Equal(t, int32(1), primary.callCount())
		assert.Equal(t, int32(0), fallback.callCount())
		assert.Equal(t, entity.SourcePrimary, store.Metadata().Source)
		assert.True(t, store.Metadata().Online)
	})

	t.Run("Primary failure falls through to fallback", func(t *testing.T) {
		store := newMemStore()
		primary := &countingProvider{err: errors.New("connection refused")}
		fallback := &countingProvider{set: usdSet(0.80)}
		svc := newTestService(store, primary, fallback)

		set := svc.FetchRates(ctx, "USD")

		rate, ok := set.Lookup("EUR")
		assert.True(t, ok)
		assert.Equal(t, 0.80, rate.Rate)
		assert.Equal(t, entity.SourceFallback, store.Metadata().Source)
	})

	t.Run("Both fail with prior set returns prior set unchanged", func(t *testing.T) {
		store := newMemStore()
		prior := usdSet(0.83)
		_ = store.Put(ctx, "USD", prior, entity.FetchMetadata{
			LastFetch: time.Now().Add(-48 * time.Hour),
			Source:    entity.SourcePrimary,
		})
		putsBefore := store.puts

		primary := &countingProvider{err: errors.New("timeout")}
		fallback := &countingProvider{err: errors.New("timeout")}
		svc := newTestService(store, primary, fallback)

		set := svc.FetchRates(ctx, "USD")

		assert.Equal(t, prior, set)
		assert.Equal(t, putsBefore, store.puts) // no store write on total failure
	})

	t.Run("Both fail with no prior set returns empty set", func(t *testing.T) {
		store := newMemStore()
		primary := &countingProvider{err: errors.New("timeout")}
		fallback := &countingProvider{err: errors.New("timeout")}
		svc := newTestService(store, primary, fallback)

		set := svc.FetchRates(ctx, "USD")

		assert.True(t, set.Empty())
		assert.Equal(t, "USD", set.Base)
		// Empty means an empty collection, never a nil one; the JSON
		// shape downstream is "rates":[] rather than "rates":null.
		assert.NotNil(t, set.Rates)
		assert.True(t, store.Metadata().NeverFetched())
	})
}

func TestFetchRatesSurvivesPersistenceFailure(t *testing.T) {
	// A store write failure degrades durability, never the returned data.
	store := new(mocks.MockRateStore)
	store.On("Put", mock.Anything, "USD", mock.Anything, mock.Anything).
		Return(errors.New("disk full")).Once()

	primary := new(mocks.MockRateProvider)
	primary.On("FetchRates", mock.Anything, "USD").Return(usdSet(0.85), nil).Once()

	log := logger.NewJSONLogger(nil, logger.ErrorLevel)
	svc := NewRateService(store, []RateSource{
		{Source: entity.SourcePrimary, Provider: primary},
	}, log, nil)

	set := svc.FetchRates(context.Background(), "USD")

	rate, ok := set.Lookup("EUR")
	assert.True(t, ok)
	assert.Equal(t, 0.85, rate.Rate)
	store.AssertExpectations(t)
	primary.AssertExpectations(t)
}

// providerFunc adapts a function to the RateProvider interface.
type providerFunc func(ctx context.Context, base string) (entity.RateSet, error)

func (f providerFunc) FetchRates(ctx context.Context, base string) (entity.RateSet, error) {
	return f(ctx, base)
}

func TestFetchRatesOutlivesCallerCancellation(t *testing.T) {
	store := newMemStore()
	primary := providerFunc(func(ctx context.Context, base string) (entity.RateSet, error) {
		if err := ctx.Err(); err != nil {
			return entity.RateSet{}, err
		}
		return usdSet(0.85), nil
	})

	log := logger.NewJSONLogger(nil, logger.ErrorLevel)
	svc := NewRateService(store, []RateSource{
		{Source: entity.SourcePrimary, Provider: primary},
	}, log, nil)

	// A caller disconnecting must not poison the shared fetch result.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	set := svc.FetchRates(ctx, "USD")

	rate, ok := set.Lookup("EUR")
	assert.True(t, ok)
	assert.Equal(t, 0.85, rate.Rate)
	assert.Equal(t, entity.SourcePrimary, store.Metadata().Source)
}

func TestFetchRatesCollapsesConcurrentCalls(t *testing.T) {
	store := newMemStore()
	gate := make(chan struct{})
	primary := &countingProvider{set: usdSet(0.85), gate: gate}
	fallback := &countingProvider{set: usdSet(0.80)}
	svc := newTestService(store, primary, fallback)

	var wg sync.WaitGroup
	results := make([]entity.RateSet, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.FetchRates(context.Background(), "USD")
		}(i)
	}

	// Let both callers join the in-flight fetch before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), primary.callCount())
	assert.Equal(t, results[0], results[1])
}

func TestRatesUsesStoreWhenFresh(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	_ = store.Put(ctx, "USD", usdSet(0.85), entity.FetchMetadata{
		LastFetch: time.Now().UTC(),
		Source:    entity.SourcePrimary,
		Online:    true,
	})

	primary := &countingProvider{set: usdSet(0.90)}
	fallback := &countingProvider{set: usdSet(0.80)}
	svc := newTestService(store, primary, fallback)

	set := svc.Rates(ctx, "USD", false)
	rate, _ := set.Lookup("EUR")
	assert.Equal(t, 0.85, rate.Rate)
	assert.Equal(t, int32(0), primary.callCount())

	// force bypasses freshness
	set = svc.Rates(ctx, "USD", true)
	rate, _ = set.Lookup("EUR")
	assert.Equal(t, 0.90, rate.Rate)
	assert.Equal(t, int32(1), primary.callCount())
}

func TestMetadataView(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &countingProvider{}, &countingProvider{})

	view := svc.Metadata()
	assert.True(t, view.Stale)
	assert.False(t, view.EverFetched)
	assert.True(t, view.OfferRefresh)

	_ = store.Put(context.Background(), "USD", usdSet(0.85), entity.FetchMetadata{
		LastFetch: time.Now().UTC(),
		Source:    entity.SourceFallback,
		Online:    true,
	})

	view = svc.Metadata()
	assert.False(t, view.Stale)
	assert.True(t, view.EverFetched)
	assert.Equal(t, entity.SourceFallback, view.Metadata.Source)
}
