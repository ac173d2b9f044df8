package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/observability"
)

// Backend is durable storage for the full ledger. Load returns an empty slice
// and no error when nothing has been stored yet. Save replaces the stored
// ledger with records.
type Backend interface {
	Name() string
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
	Close() error
}

// Store is the in-memory ledger mirrored to a Backend.
//
// Every mutation is followed by a synchronous full rewrite of the backend.
// That makes each write O(n) in the ledger size, which is acceptable for the
// traffic of a single landing page. A single mutex serialises
// read-modify-write-persist so concurrent first visits from one address
// cannot both insert.
type Store struct {
	mu      sync.Mutex
	records map[string]Marker
	backend Backend
	metrics observability.MetricsRegistry
	logger  *zap.Logger

	// dirty is set while memory holds changes the backend has not accepted.
	dirty       bool
	saveTimeout time.Duration
}

// DefaultSaveTimeout bounds a flush triggered by a visit.
const DefaultSaveTimeout = 5 * time.Second

// Option configures a Store.
type Option func(*Store)

// WithMetrics sets the registry used for ledger size and flush metrics.
func WithMetrics(m observability.MetricsRegistry) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithSaveTimeout bounds each flush triggered by Observe.
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.saveTimeout = d
		}
	}
}

// Observation describes what a single visit did to the ledger.
type Observation struct {
	// Known is true when the address had a record before this visit.
	Known bool
	// Prior is the marker before this visit; empty when !Known.
	Prior Marker
	// Updated is true when the visit changed the ledger.
	Updated bool
}

// Open loads the ledger from backend. Missing storage yields an empty ledger;
// malformed storage returns an error wrapping ErrMalformedLedger.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		records: make(map[string]Marker),
		backend: backend,
		metrics: observability.NewNoOpRegistry(),
		logger:  zap.NewNop(),

		saveTimeout: DefaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	recs, err := backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		s.mark(r.Address, r.Marker)
	}
	s.dirty = false
	s.metrics.SetLedgerSize(len(s.records))
	s.logger.Info("ledger loaded",
		zap.String("backend", backend.Name()),
		zap.Int("records", len(s.records)))
	return s, nil
}

// Contains reports whether addr has a record.
func (s *Store) Contains(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[addr]
	return ok
}

// IsCampaignMarked reports whether addr carries the campaign marker.
func (s *Store) IsCampaignMarked(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[addr] == MarkerCampaign
}

// Mark sets the in-memory marker for addr and reports whether the ledger
// changed. A campaign marker is never replaced by a plain one. Callers must
// follow a change with Save.
func (s *Store) Mark(addr string, m Marker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mark(addr, m)
}

func (s *Store) mark(addr string, m Marker) bool {
	if addr == "" || !m.Valid() {
		return false
	}
	cur, ok := s.records[addr]
	if ok && (cur == m || cur == MarkerCampaign) {
		return false
	}
	s.records[addr] = m
	s.dirty = true
	return true
}

// Save writes the full ledger to the backend.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx)
}

func (s *Store) save(ctx context.Context) error {
	start := time.Now()
	err := s.backend.Save(ctx, sortedRecords(s.records))
	s.metrics.RecordLedgerSaveLatency(time.Since(start))
	s.metrics.SetLedgerSize(len(s.records))
	if err != nil {
		s.dirty = true
		s.metrics.IncrementLedgerSaves("failure")
		return err
	}
	s.dirty = false
	s.metrics.IncrementLedgerSaves("success")
	return nil
}

// Observe records a visit from addr. A visit with campaign attribution marks
// the address as campaign; any other visit inserts a plain record only for a
// new address. When the ledger changes it is flushed before the lock is
// released. The flush ignores cancellation of ctx and is bounded by the
// store's save timeout. A flush error is returned alongside a valid
// Observation; the in-memory ledger keeps the change and the next Observe
// retries the flush even if it changes nothing.
func (s *Store) Observe(ctx context.Context, addr string, campaign bool) (Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior, known := s.records[addr]
	obs := Observation{Known: known, Prior: prior}

	want := MarkerPlain
	if campaign {
		want = MarkerCampaign
	}
	obs.Updated = s.mark(addr, want)
	if !s.dirty {
		return obs, nil
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.saveTimeout)
	defer cancel()
	return obs, s.save(saveCtx)
}

// Snapshot returns every record sorted by address.
func (s *Store) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedRecords(s.records)
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// BackendName names the durable storage in use.
func (s *Store) BackendName() string {
	return s.backend.Name()
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
