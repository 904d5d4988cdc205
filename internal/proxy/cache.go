package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/ristretto"
	"github.com/offlinefx/offlinefx/internal/infrastructure/logger"
)

// keyPrefix namespaces proxy entries inside the shared BadgerDB so they
// never collide with the rate store's keys.
const keyPrefix = "proxy:"

// CachedResponse is the stored form of one successful network response.
// Entries are replaced wholesale on a later fetch for the same key.
type CachedResponse struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Response rebuilds an *http.Response from the cached entry.
func (c *CachedResponse) Response(req *http.Request) *http.Response {
	header := c.Header.Clone()
	if header == nil {
		header = http.Header{}
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", c.Status, http.StatusText(c.Status)),
		StatusCode:    c.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          newBodyReader(c.Body),
		ContentLength: int64(len(c.Body)),
		Request:       req,
	}
}

// PartitionStore holds the proxy's response cache: named, independently
// versioned partitions persisted in BadgerDB, fronted by a ristretto
// read-through layer for hot lookups.
type PartitionStore struct {
	db     *badger.DB
	hot    *ristretto.Cache
	logger logger.Logger
}

// NewPartitionStore creates the partition store over an open BadgerDB
// handle. hotEntries bounds the in-memory layer.
func NewPartitionStore(badgerDB *badger.DB, hotEntries int64, log logger.Logger) (*PartitionStore, error) {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	if hotEntries <= 0 {
		hotEntries = 1024
	}

	hot, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * hotEntries,
		MaxCost:     hotEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create hot cache: %w", err)
	}

	return &PartitionStore{
		db:     badgerDB,
		hot:    hot,
		logger: log,
	}, nil
}

func entryKey(partition, method, rawURL string) string {
	return keyPrefix + partition + ":" + method + ":" + rawURL
}

// Get returns the cached response for the exact (method, URL) key within a
// partition, if present.
func (s *PartitionStore) Get(partition, method, rawURL string) (*CachedResponse, bool) {
	key := entryKey(partition, method, rawURL)

	if v, ok := s.hot.Get(key); ok {
		if cached, ok := v.(*CachedResponse); ok {
			return cached, true
		}
	}

	var cached CachedResponse
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cached)
		})
	})

	if err != nil {
		if err != badger.ErrKeyNotFound {
			s.logger.Warn("Failed to read cached response", map[string]interface{}{
				"partition": partition,
				"url":       rawURL,
				"error":     err.Error(),
			})
		}
		return nil, false
	}

	s.hot.Set(key, &cached, 1)
	return &cached, true
}

// Put replaces the cached response for the exact (method, URL) key.
func (s *PartitionStore) Put(partition, method, rawURL string, cached *CachedResponse) error {
	key := entryKey(partition, method, rawURL)

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal cached response: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store cached response: %w", err)
	}

	s.hot.Set(key, cached, 1)
	return nil
}

// Partitions lists the distinct partition names currently persisted.
func (s *PartitionStore) Partitions() ([]string, error) {
	seen := make(map[string]struct{})

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			rest := strings.TrimPrefix(key, keyPrefix)
			if idx := strings.Index(rest, ":"); idx > 0 {
				seen[rest[:idx]] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names, nil
}

// Drop deletes a partition wholesale. The hot layer has no prefix delete,
// so it is cleared entirely; persisted entries repopulate it on demand.
func (s *PartitionStore) Drop(partition string) error {
	prefix := []byte(keyPrefix + partition + ":")

	// Collect first: writing while an iterator is open on the same
	// transaction is not allowed.
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to drop partition %s: %w", partition, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to drop partition %s: %w", partition, err)
	}

	s.hot.Clear()
	return nil
}
