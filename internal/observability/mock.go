package observability

import (
	"sync"
	"time"
)

var _ MetricsRegistry = (*MockMetricsRegistry)(nil)

// MockMetricsRegistry records calls so tests can assert on emitted metrics.
// Counters are keyed by the label values joined with "/".
type MockMetricsRegistry struct {
	mu              sync.Mutex
	Requests        map[string]int
	Classifications map[string]int
	LedgerSaves     map[string]int
	GeoLookups      map[string]int
	RateLimitHits   map[string]int
	Events          map[string]int
	LedgerSize      int
}

// NewMockMetricsRegistry returns an empty recording registry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		Requests:        map[string]int{},
		Classifications: map[string]int{},
		LedgerSaves:     map[string]int{},
		GeoLookups:      map[string]int{},
		RateLimitHits:   map[string]int{},
		Events:          map[string]int{},
	}
}

func (m *MockMetricsRegistry) inc(counter map[string]int, key string) {
	m.mu.Lock()
	counter[key]++
	m.mu.Unlock()
}

// Count returns the recorded value for key in counter under the registry lock.
func (m *MockMetricsRegistry) Count(counter map[string]int, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return counter[key]
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.inc(m.Requests, endpoint+"/"+method+"/"+status)
}

func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

func (m *MockMetricsRegistry) IncrementClassifications(route string) {
	m.inc(m.Classifications, route)
}

func (m *MockMetricsRegistry) SetLedgerSize(n int) {
	m.mu.Lock()
	m.LedgerSize = n
	m.mu.Unlock()
}

func (m *MockMetricsRegistry) IncrementLedgerSaves(outcome string) {
	m.inc(m.LedgerSaves, outcome)
}

func (m *MockMetricsRegistry) RecordLedgerSaveLatency(duration time.Duration) {}

func (m *MockMetricsRegistry) IncrementGeoLookups(source, outcome string) {
	m.inc(m.GeoLookups, source+"/"+outcome)
}

func (m *MockMetricsRegistry) RecordGeoLookupLatency(source string, duration time.Duration) {}

func (m *MockMetricsRegistry) IncrementRateLimitRequests(key string) {}

func (m *MockMetricsRegistry) IncrementRateLimitHits(key string) {
	m.inc(m.RateLimitHits, key)
}

func (m *MockMetricsRegistry) IncrementEvent(eventType, outcome string) {
	m.inc(m.Events, eventType+"/"+outcome)
}
