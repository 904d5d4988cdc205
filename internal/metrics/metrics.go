package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the Prometheus collectors for the rate engine and the
// interception proxy. A nil *Metrics is valid and records nothing, so tests
// can pass nil instead of wiring a registry.
type Metrics struct {
	FetchTotal       *prometheus.CounterVec
	ConversionsTotal *prometheus.CounterVec
	ProxyRequests    *prometheus.CounterVec
	ProxyCacheHits   *prometheus.CounterVec
	ProxyCacheMisses *prometheus.CounterVec
	OfflineResponses prometheus.Counter
	RateDataStale    prometheus.Gauge
	HoursSinceUpdate prometheus.Gauge
}

// New registers the collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_fetch_total",
				Help: "Rate fetch attempts by source and outcome",
			},
			[]string{"source", "outcome"},
		),

		ConversionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversions_total",
				Help: "Currency conversions by outcome",
			},
			[]string{"outcome"},
		),

		ProxyRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_requests_total",
				Help: "Requests dispatched by the interception proxy, by class",
			},
			[]string{"class"},
		),

		ProxyCacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_cache_hits_total",
				Help: "Proxy cache hits by partition kind",
			},
			[]string{"partition"},
		),

		ProxyCacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_cache_misses_total",
				Help: "Proxy cache misses by partition kind",
			},
			[]string{"partition"},
		),

		OfflineResponses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "proxy_offline_responses_total",
				Help: "Synthetic offline responses served by the proxy",
			},
		),

		RateDataStale: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rate_data_stale",
				Help: "1 when stored rate data is stale, 0 otherwise",
			},
		),

		HoursSinceUpdate: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rate_hours_since_update",
				Help: "Hours since the last successful rate fetch",
			},
		),
	}
}

// ObserveFetch records one fetch attempt outcome.
func (m *Metrics) ObserveFetch(source, outcome string) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveConversion records one conversion outcome.
func (m *Metrics) ObserveConversion(outcome string) {
	if m == nil {
		return
	}
	m.ConversionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveProxyRequest records one proxied request by class.
func (m *Metrics) ObserveProxyRequest(class string) {
	if m == nil {
		return
	}
	m.ProxyRequests.WithLabelValues(class).Inc()
}

// ObserveCacheHit records a proxy cache hit.
func (m *Metrics) ObserveCacheHit(partition string) {
	if m == nil {
		return
	}
	m.ProxyCacheHits.WithLabelValues(partition).Inc()
}

// ObserveCacheMiss records a proxy cache miss.
func (m *Metrics) ObserveCacheMiss(partition string) {
	if m == nil {
		return
	}
	m.ProxyCacheMisses.WithLabelValues(partition).Inc()
}

// ObserveOfflineResponse records a synthetic offline response.
func (m *Metrics) ObserveOfflineResponse() {
	if m == nil {
		return
	}
	m.OfflineResponses.Inc()
}

// SetStaleness updates the freshness gauges.
func (m *Metrics) SetStaleness(stale bool, hoursSinceUpdate float64) {
	if m == nil {
		return
	}
	if stale {
		m.RateDataStale.Set(1)
	} else {
		m.RateDataStale.Set(0)
	}
	m.HoursSinceUpdate.Set(hoursSinceUpdate)
}
