package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/offlinefx/offlinefx/internal/domain/entity"
	"github.com/offlinefx/offlinefx/internal/infrastructure/logger"
)

// Fixed keys under which the snapshot and the metadata record are persisted.
const (
	rateCacheKey     = "rate-cache"
	fetchMetadataKey = "fetch-metadata"
)

// BadgerRateStore implements the RateStore interface on BadgerDB. The full
// rate map lives in memory and is serialized wholesale on every Put; the
// persisted snapshot is loaded once at construction. A malformed or missing
// snapshot starts the store empty with "never fetched" metadata rather than
// failing startup.
type BadgerRateStore struct {
	db     *badger.DB
	logger logger.Logger

	mu    sync.RWMutex
	rates map[string]entity.RateSet
	meta  entity.FetchMetadata
}

// NewBadgerRateStore creates a rate store backed by an open BadgerDB handle
// and loads the persisted snapshot.
func NewBadgerRateStore(badgerDB *badger.DB, log logger.Logger) *BadgerRateStore {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	s := &BadgerRateStore{
		db:     badgerDB,
		logger: log,
		rates:  make(map[string]entity.RateSet),
		meta:   entity.FetchMetadata{Source: entity.SourceNone},
	}
	s.load()
	return s
}

// load restores the snapshot and metadata. Corruption is logged and treated
// as "never fetched"; it never propagates.
func (s *BadgerRateStore) load() {
	err := s.db.View(func(txn *badger.Txn) error {
		if item, err := txn.Get([]byte(rateCacheKey)); err == nil {
			_ = item.Value(func(val []byte) error {
				var rates map[string]entity.RateSet
				if err := json.Unmarshal(val, &rates); err != nil {
					s.logger.Warn("Discarding malformed rate snapshot", map[string]interface{}{
						"error": err.Error(),
					})
					return nil
				}
				// A JSON "null" snapshot decodes cleanly into a nil map;
				// keep the empty one so Put never writes into nil.
				if rates != nil {
					s.rates = rates
				}
				return nil
			})
		}

		if item, err := txn.Get([]byte(fetchMetadataKey)); err == nil {
			_ = item.Value(func(val []byte) error {
				var meta entity.FetchMetadata
				if err := json.Unmarshal(val, &meta); err != nil {
					s.logger.Warn("Discarding malformed fetch metadata", map[string]interface{}{
						"error": err.Error(),
					})
					return nil
				}
				s.meta = meta
				return nil
			})
		}

		return nil
	})

	if err != nil {
		s.logger.Warn("Failed to read persisted rate snapshot, starting empty", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	s.logger.Info("Rate store loaded", map[string]interface{}{
		"bases":         len(s.rates),
		"never_fetched": s.meta.NeverFetched(),
	})
}

// Get returns the stored RateSet for a base currency, if any.
func (s *BadgerRateStore) Get(ctx context.Context, base string) (entity.RateSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.rates[base]
	return set, ok
}

// Put atomically replaces the RateSet for a base currency along with the
// fetch metadata, then persists both under their fixed keys.
func (s *BadgerRateStore) Put(ctx context.Context, base string, set entity.RateSet, meta entity.FetchMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevSet, hadSet := s.rates[base]
	prevMeta := s.meta
	s.rates[base] = set
	s.meta = meta

	snapshot, err := json.Marshal(s.rates)
	if err != nil {
		return fmt.Errorf("failed to marshal rate snapshot: %w", err)
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal fetch metadata: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(rateCacheKey), snapshot); err != nil {
			return err
		}
		return txn.Set([]byte(fetchMetadataKey), metaData)
	})

	if err != nil {
		// Roll the in-memory view back so memory and disk stay consistent.
		if hadSet {
			s.rates[base] = prevSet
		} else {
			delete(s.rates, base)
		}
		s.meta = prevMeta
		return fmt.Errorf("failed to persist rate snapshot: %w", err)
	}

	return nil
}

// Metadata returns the last known fetch metadata.
func (s *BadgerRateStore) Metadata() entity.FetchMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.meta
}

// LatestRateDate returns the max rate date among cached entries for a base.
func (s *BadgerRateStore) LatestRateDate(ctx context.Context, base string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.rates[base]
	if !ok {
		return time.Time{}, false
	}
	return set.LatestDate()
}
