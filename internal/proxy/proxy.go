// Package proxy implements the network interception layer. Every outbound
// request the application issues passes through Transport, which applies a
// caching strategy per request class and always produces a response, even
// with no connectivity.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/offlinefx/offlinefx/internal/infrastructure/logger"
	"github.com/offlinefx/offlinefx/internal/metrics"
)

// State tracks the proxy lifecycle.
type State int

const (
	// StateNew is the state before Install has run.
	StateNew State = iota
	// StateInstalling is the state while the static partition is being
	// pre-populated from the asset manifest.
	StateInstalling
	// StateActivating is the state while stale-version partitions are
	// being pruned.
	StateActivating
	// StateActive is the normal intercepting state.
	StateActive
)

// MessageCacheUpdate asks the proxy to re-populate the static partition
// from the asset manifest, independent of the normal request flow.
const MessageCacheUpdate = "cache update"

const defaultFallbackDocument = `<!DOCTYPE html>
<html>
<head><title>Offline</title></head>
<body><p>You are offline and this page has not been cached yet.</p></body>
</html>
`

// Config configures a Transport.
type Config struct {
	// Inner is the transport that reaches the real network. Defaults to
	// http.DefaultTransport.
	Inner http.RoundTripper
	// Store holds the persisted response cache partitions.
	Store *PartitionStore
	// Version tags the cache partitions. Partitions created under a
	// different version are deleted wholesale during Activate.
	Version string
	// RateHosts are the hostnames treated as rate-service traffic.
	RateHosts []string
	// Manifest lists the absolute URLs of essential assets pre-populated
	// into the static partition.
	Manifest []string
	// FallbackDocument is served for navigations when both the network
	// and the cache fail. A default offline page is used when empty.
	FallbackDocument []byte
	Logger           logger.Logger
	Metrics          *metrics.Metrics
}

// Transport is the interception proxy. It implements http.RoundTripper so
// the application's HTTP clients are simply built on top of it.
type Transport struct {
	inner       http.RoundTripper
	store       *PartitionStore
	version     string
	rateHosts   map[string]struct{}
	manifest    []string
	fallbackDoc []byte
	logger      logger.Logger
	metrics     *metrics.Metrics

	mu    sync.RWMutex
	state State
}

// New creates the proxy transport.
func New(cfg Config) *Transport {
	inner := cfg.Inner
	if inner == nil {
		inner = http.DefaultTransport
	}

	log := cfg.Logger
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	fallbackDoc := cfg.FallbackDocument
	if len(fallbackDoc) == 0 {
		fallbackDoc = []byte(defaultFallbackDocument)
	}

	hosts := make(map[string]struct{}, len(cfg.RateHosts))
	for _, h := range cfg.RateHosts {
		hosts[h] = struct{}{}
	}

	return &Transport{
		inner:       inner,
		store:       cfg.Store,
		version:     cfg.Version,
		rateHosts:   hosts,
		manifest:    cfg.Manifest,
		fallbackDoc: fallbackDoc,
		logger:      log,
		metrics:     cfg.Metrics,
	}
}

func (t *Transport) staticPartition() string { return "static-" + t.version }
func (t *Transport) apiPartition() string    { return "api-" + t.version }

// State returns the current lifecycle state.
func (t *Transport) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Transport) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Install pre-populates the static partition with the asset manifest. A
// single asset failing to precache is logged, not fatal: it will be fetched
// on first use instead.
func (t *Transport) Install(ctx context.Context) error {
	t.setState(StateInstalling)

	for _, assetURL := range t.manifest {
		if err := t.precache(ctx, assetURL); err != nil {
			t.logger.Warn("Failed to precache asset", map[string]interface{}{
				"url":   assetURL,
				"error": err.Error(),
			})
		}
	}

	t.setState(StateActive)
	t.logger.Info("Proxy installed", map[string]interface{}{
		"version":  t.version,
		"manifest": len(t.manifest),
	})
	return nil
}

// Activate deletes every partition whose version tag does not match the
// running build version, then resumes intercepting.
func (t *Transport) Activate(ctx context.Context) error {
	t.setState(StateActivating)
	defer t.setState(StateActive)

	partitions, err := t.store.Partitions()
	if err != nil {
		return fmt.Errorf("failed to enumerate partitions: %w", err)
	}

	keep := map[string]struct{}{
		t.staticPartition(): {},
		t.apiPartition():    {},
	}

	for _, name := range partitions {
		if _, ok := keep[name]; ok {
			continue
		}
		if err := t.store.Drop(name); err != nil {
			return err
		}
		t.logger.Info("Dropped stale cache partition", map[string]interface{}{
			"partition": name,
			"version":   t.version,
		})
	}

	return nil
}

// HandleMessage processes an external signal. "cache update" re-populates
// the static partition from the manifest; anything else is ignored.
func (t *Transport) HandleMessage(ctx context.Context, msg string) error {
	if msg != MessageCacheUpdate {
		t.logger.Debug("Ignoring unknown proxy message", map[string]interface{}{
			"message": msg,
		})
		return nil
	}

	t.logger.Info("Re-populating static partition on cache update", nil)
	for _, assetURL := range t.manifest {
		if err := t.precache(ctx, assetURL); err != nil {
			t.logger.Warn("Failed to refresh precached asset", map[string]interface{}{
				"url":   assetURL,
				"error": err.Error(),
			})
		}
	}
	return nil
}

func (t *Transport) precache(ctx context.Context, assetURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return err
	}

	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return err
	}

	cached, err := drainResponse(resp)
	if err != nil {
		return err
	}

	if cached.Status < 200 || cached.Status >= 300 {
		return fmt.Errorf("asset returned status %d", cached.Status)
	}

	return t.store.Put(t.staticPartition(), req.Method, assetURL, cached)
}

// RoundTrip dispatches the request to the strategy its class prescribes.
// It guarantees rate-service callers a response even with no connectivity.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	class := Classify(req, t.rateHosts)
	t.metrics.ObserveProxyRequest(class.String())

	switch class {
	case ClassRateService:
		return t.serveRateRequest(req)
	case ClassDocument:
		return t.serveDocument(req)
	default:
		return t.serveAsset(req)
	}
}

// serveRateRequest is network-first with cache fallback. The synthetic 503
// carries offline:true so callers can tell "no data" from "malformed data".
func (t *Transport) serveRateRequest(req *http.Request) (*http.Response, error) {
	key := req.URL.String()

	resp, err := t.inner.RoundTrip(req)
	if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		cached, drainErr := drainResponse(resp)
		if drainErr == nil {
			if putErr := t.store.Put(t.apiPartition(), req.Method, key, cached); putErr != nil {
				t.logger.Warn("Failed to cache rate response", map[string]interface{}{
					"url":   key,
					"error": putErr.Error(),
				})
			}
			return cached.Response(req), nil
		}
		// A body that dies mid-read is a network failure like any other.
		err = drainErr
	}
	if err == nil {
		// A reachable upstream answering non-2xx is a genuine upstream
		// error; pass it through untouched and keep the cache as-is.
		return resp, nil
	}

	t.logger.Warn("Network unreachable for rate request", map[string]interface{}{
		"url":   key,
		"error": err.Error(),
	})

	if cached, ok := t.store.Get(t.apiPartition(), req.Method, key); ok {
		t.metrics.ObserveCacheHit("api")
		return cached.Response(req), nil
	}
	t.metrics.ObserveCacheMiss("api")

	t.metrics.ObserveOfflineResponse()
	return offlineResponse(req), nil
}

// serveDocument is network-first into the static partition, so the latest
// shell is always cached; the fixed fallback document is the last resort.
func (t *Transport) serveDocument(req *http.Request) (*http.Response, error) {
	key := req.URL.String()

	resp, err := t.inner.RoundTrip(req)
	if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		cached, drainErr := drainResponse(resp)
		if drainErr == nil {
			if putErr := t.store.Put(t.staticPartition(), req.Method, key, cached); putErr != nil {
				t.logger.Warn("Failed to cache document", map[string]interface{}{
					"url":   key,
					"error": putErr.Error(),
				})
			}
			return cached.Response(req), nil
		}
		err = drainErr
	}
	if err == nil {
		return resp, nil
	}

	if cached, ok := t.store.Get(t.staticPartition(), req.Method, key); ok {
		t.metrics.ObserveCacheHit("static")
		return cached.Response(req), nil
	}
	t.metrics.ObserveCacheMiss("static")

	fallback := &CachedResponse{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:   t.fallbackDoc,
	}
	return fallback.Response(req), nil
}

// serveAsset is cache-first. A miss goes to the network without storing the
// result; a total failure surfaces as a failed load.
func (t *Transport) serveAsset(req *http.Request) (*http.Response, error) {
	key := req.URL.String()

	if cached, ok := t.store.Get(t.staticPartition(), req.Method, key); ok {
		t.metrics.ObserveCacheHit("static")
		return cached.Response(req), nil
	}
	t.metrics.ObserveCacheMiss("static")

	return t.inner.RoundTrip(req)
}

// drainResponse reads a response fully into its cached form, closing the
// original body.
func drainResponse(resp *http.Response) (*CachedResponse, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &CachedResponse{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now().UTC(),
	}, nil
}

// offlineResponse synthesizes the 503 served when a rate request can be
// answered neither from the network nor from cache.
func offlineResponse(req *http.Request) *http.Response {
	body := []byte(`{"error":"offline","offline":true}`)

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Offline", "true")

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable)),
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          newBodyReader(body),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func newBodyReader(body []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(body))
}

// IsOfflineResponse reports whether a response is the proxy's synthetic
// offline marker rather than a genuine upstream payload.
func IsOfflineResponse(resp *http.Response) bool {
	return resp != nil && resp.Header.Get("X-Offline") == "true"
}
