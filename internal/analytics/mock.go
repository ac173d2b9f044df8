package analytics

import (
	"context"
	"sync"
)

var _ Recorder = (*MockAnalytics)(nil)

// MockAnalytics keeps recorded visits in memory for tests.
type MockAnalytics struct {
	mu     sync.Mutex
	Visits []Visit
	Err    error
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordVisit appends v and returns Err.
func (m *MockAnalytics) RecordVisit(ctx context.Context, v Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Visits = append(m.Visits, v)
	return m.Err
}

// Recorded returns a copy of the recorded visits.
func (m *MockAnalytics) Recorded() []Visit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Visit(nil), m.Visits...)
}

// NoOp discards visits; used when ClickHouse is not configured.
type NoOp struct{}

func (NoOp) RecordVisit(ctx context.Context, v Visit) error { return nil }
