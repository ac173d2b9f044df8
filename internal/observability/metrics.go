package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landing_requests_total",
			Help: "Total HTTP requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "landing_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// classification decisions labelled by route
	ClassificationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landing_classifications_total",
			Help: "Total visitor classifications by route",
		},
		[]string{"route"},
	)

	// number of client records currently held in the ledger
	LedgerSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "landing_ledger_records",
			Help: "Number of client records in the IP ledger",
		},
	)

	// ledger flushes labelled by outcome
	LedgerSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landing_ledger_saves_total",
			Help: "Total ledger flushes to durable storage",
		},
		[]string{"outcome"},
	)

	// duration of a full-ledger flush
	LedgerSaveLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "landing_ledger_save_duration_seconds",
			Help:    "Duration of full ledger rewrites",
			Buckets: prometheus.DefBuckets,
		},
	)

	// geo lookups labelled by outcome
	GeoLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landing_geo_lookups_total",
			Help: "Total geolocation lookups",
		},
		[]string{"source", "outcome"},
	)

	// latency of geo lookups
	GeoLookupLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "landing_geo_lookup_duration_seconds",
			Help:    "Duration of geolocation lookups",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 3, 5},
		},
		[]string{"source"},
	)

	// rate limit requests per key
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landing_ratelimit_requests_total",
			Help: "Total rate limit checks per key",
		},
		[]string{"key"},
	)

	// rate limit hits per key
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landing_ratelimit_hits_total",
			Help: "Total rate limit hits per key",
		},
		[]string{"key"},
	)

	// analytics events recorded, labelled by type and outcome
	EventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landing_events_total",
			Help: "Total analytics events recorded",
		},
		[]string{"type", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		ClassificationCount,
		LedgerSize,
		LedgerSaves,
		LedgerSaveLatency,
		GeoLookups,
		GeoLookupLatency,
		RateLimitRequests,
		RateLimitHits,
		EventCount,
	)
}
