package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it by injection instead of touching the global collectors.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Classification metrics
	IncrementClassifications(route string)

	// Ledger metrics
	SetLedgerSize(n int)
	IncrementLedgerSaves(outcome string)
	RecordLedgerSaveLatency(duration time.Duration)

	// Geo lookup metrics
	IncrementGeoLookups(source, outcome string)
	RecordGeoLookupLatency(source string, duration time.Duration)

	// Rate limiting metrics
	IncrementRateLimitRequests(key string)
	IncrementRateLimitHits(key string)

	// Analytics metrics
	IncrementEvent(eventType, outcome string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus collectors
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementClassifications(route string) {
	ClassificationCount.WithLabelValues(route).Inc()
}

func (r *PrometheusRegistry) SetLedgerSize(n int) {
	LedgerSize.Set(float64(n))
}

func (r *PrometheusRegistry) IncrementLedgerSaves(outcome string) {
	LedgerSaves.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordLedgerSaveLatency(duration time.Duration) {
	LedgerSaveLatency.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementGeoLookups(source, outcome string) {
	GeoLookups.WithLabelValues(source, outcome).Inc()
}

func (r *PrometheusRegistry) RecordGeoLookupLatency(source string, duration time.Duration) {
	GeoLookupLatency.WithLabelValues(source).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementRateLimitRequests(key string) {
	RateLimitRequests.WithLabelValues(key).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(key string) {
	RateLimitHits.WithLabelValues(key).Inc()
}

func (r *PrometheusRegistry) IncrementEvent(eventType, outcome string) {
	EventCount.WithLabelValues(eventType, outcome).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementClassifications(route string)                                {}
func (r *NoOpRegistry) SetLedgerSize(n int)                                                  {}
func (r *NoOpRegistry) IncrementLedgerSaves(outcome string)                                  {}
func (r *NoOpRegistry) RecordLedgerSaveLatency(duration time.Duration)                       {}
func (r *NoOpRegistry) IncrementGeoLookups(source, outcome string)                           {}
func (r *NoOpRegistry) RecordGeoLookupLatency(source string, duration time.Duration)         {}
func (r *NoOpRegistry) IncrementRateLimitRequests(key string)                                {}
func (r *NoOpRegistry) IncrementRateLimitHits(key string)                                    {}
func (r *NoOpRegistry) IncrementEvent(eventType, outcome string)                             {}
