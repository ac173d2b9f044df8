package classify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/krati1611/smallhappinessclub/internal/allowlist"
	"github.com/krati1611/smallhappinessclub/internal/geoip"
	"github.com/krati1611/smallhappinessclub/internal/ledger"
	"github.com/krati1611/smallhappinessclub/internal/middleware"
	"github.com/krati1611/smallhappinessclub/internal/observability"
	"github.com/krati1611/smallhappinessclub/internal/signals"
)

const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

const fullCampaignQuery = "/?gclid=G1&campaignid=C1&placement=P1&network=N1&random=R1"

// countingGeo returns a fixed answer and counts calls.
type countingGeo struct {
	country string
	calls   atomic.Int32
}

func (g *countingGeo) Resolve(ctx context.Context, addr string) string {
	g.calls.Add(1)
	return g.country
}

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }

func (failingBackend) Load(ctx context.Context) ([]ledger.Record, error) { return nil, nil }

func (failingBackend) Save(ctx context.Context, r []ledger.Record) error {
	return errors.New("read-only filesystem")
}

func (failingBackend) Close() error { return nil }

func newTestStore(t *testing.T) (*ledger.Store, *ledger.FileBackend) {
	t.Helper()
	backend, err := ledger.NewFileBackend(filepath.Join(t.TempDir(), "ledger.json"), ledger.FormatRecords)
	require.NoError(t, err)
	store, err := ledger.Open(context.Background(), backend)
	require.NoError(t, err)
	return store, backend
}

func newRequest(target, addr, ua string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.RemoteAddr = addr + ":40000"
	r.Header.Set("User-Agent", ua)
	return r
}

func newTestEngine(store *ledger.Store, geo geoip.Resolver, allow *allowlist.List) (*Engine, *observability.MockMetricsRegistry) {
	e := NewEngine(store, geo, allow, signals.Extractor{})
	m := observability.NewMockMetricsRegistry()
	e.Metrics = m
	e.Logger = zap.NewNop()
	return e, m
}

func TestPlainVisitInsertsOnce(t *testing.T) {
	store, _ := newTestStore(t)
	e, _ := newTestEngine(store, &countingGeo{country: "US"}, nil)

	first := e.Classify(context.Background(), newRequest("/", "192.0.2.10", desktopUA))
	assert.True(t, first.LedgerUpdated)
	assert.True(t, first.ShowPrimaryContent)
	assert.Equal(t, RouteDefault, first.Route)

	second := e.Classify(context.Background(), newRequest("/", "192.0.2.10", desktopUA))
	assert.False(t, second.LedgerUpdated)

	assert.Equal(t, []ledger.Record{{Address: "192.0.2.10", Marker: ledger.MarkerPlain}}, store.Snapshot())
}

func TestCampaignMarkIsMonotonic(t *testing.T) {
	store, _ := newTestStore(t)
	geo := &countingGeo{country: "DE"}
	e, _ := newTestEngine(store, geo, nil)
	ctx := context.Background()

	e.Classify(ctx, newRequest("/", "192.0.2.20", desktopUA))
	assert.False(t, store.IsCampaignMarked("192.0.2.20"))

	res := e.Classify(ctx, newRequest("/?gclid=abc", "192.0.2.20", desktopUA))
	assert.True(t, res.LedgerUpdated)
	assert.True(t, store.IsCampaignMarked("192.0.2.20"))

	res = e.Classify(ctx, newRequest("/", "192.0.2.20", desktopUA))
	assert.False(t, res.LedgerUpdated)
	assert.Equal(t, RouteReturningCampaign, res.Route)
	assert.True(t, store.IsCampaignMarked("192.0.2.20"))

	res = e.Classify(ctx, newRequest("/?gclid=again", "192.0.2.20", desktopUA))
	assert.False(t, res.LedgerUpdated)
	assert.Equal(t, 1, store.Len())
}

func TestAllowListedBypassesLedgerAndGeo(t *testing.T) {
	store, _ := newTestStore(t)
	geo := &countingGeo{country: "US"}
	allow, err := allowlist.New([]string{"203.0.113.0/24"})
	require.NoError(t, err)
	e, m := newTestEngine(store, geo, allow)

	res := e.Classify(context.Background(), newRequest(fullCampaignQuery, "203.0.113.9", desktopUA))
	assert.True(t, res.ShowPrimaryContent)
	assert.True(t, res.AllowListed)
	assert.Equal(t, RouteAllowList, res.Route)
	assert.False(t, res.LedgerUpdated)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, int32(0), geo.calls.Load())
	assert.Equal(t, 1, m.Count(m.Classifications, "allowlist"))
}

func TestQualifiedVisit(t *testing.T) {
	store, _ := newTestStore(t)
	geo := &countingGeo{country: "US"}
	e, m := newTestEngine(store, geo, nil)

	res := e.Classify(context.Background(), newRequest(fullCampaignQuery, "198.51.100.7", desktopUA))
	assert.True(t, res.Qualified)
	assert.Equal(t, RouteQualified, res.Route)
	assert.Equal(t, "US", res.Country)
	assert.True(t, res.ShowPrimaryContent)
	assert.Equal(t, int32(1), geo.calls.Load())
	assert.Equal(t, 1, m.Count(m.Classifications, "qualified"))
}

func TestGeoTimeoutIsNotQualified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	store, _ := newTestStore(t)
	geo := geoip.NewHTTPResolver(srv.URL, 50*time.Millisecond, nil, zap.NewNop(), nil)
	e, _ := newTestEngine(store, geo, nil)

	var res Result
	require.NotPanics(t, func() {
		res = e.Classify(context.Background(), newRequest(fullCampaignQuery, "198.51.100.8", desktopUA))
	})
	assert.False(t, res.Qualified)
	assert.Equal(t, geoip.Unknown, res.Country)
	assert.True(t, res.ShowPrimaryContent)
	assert.True(t, store.IsCampaignMarked("198.51.100.8"))
}

func TestGeoSkippedWithoutCampaign(t *testing.T) {
	store, _ := newTestStore(t)
	geo := &countingGeo{country: "US"}
	e, _ := newTestEngine(store, geo, nil)

	res := e.Classify(context.Background(), newRequest("/?campaignid=C1&placement=P1&network=N1&random=R1", "198.51.100.9", desktopUA))
	assert.False(t, res.Qualified)
	assert.Equal(t, int32(0), geo.calls.Load())
}

func TestQualifiedConditions(t *testing.T) {
	full := signals.RequestSignals{
		HasCampaignID: true,
		GCLID:         "g",
		CampaignID:    "c",
		Placement:     "p",
		Network:       "n",
		RandomToken:   "r",
		IsDesktopOS:   true,
	}
	tests := []struct {
		name    string
		mutate  func(s *signals.RequestSignals)
		country string
		want    bool
	}{
		{"all conditions", func(s *signals.RequestSignals) {}, "US", true},
		{"lowercase country", func(s *signals.RequestSignals) {}, "us", true},
		{"no gclid", func(s *signals.RequestSignals) { s.HasCampaignID = false }, "US", false},
		{"not desktop", func(s *signals.RequestSignals) { s.IsDesktopOS = false }, "US", false},
		{"bot", func(s *signals.RequestSignals) { s.IsBotLike = true }, "US", false},
		{"no campaignid", func(s *signals.RequestSignals) { s.CampaignID = "" }, "US", false},
		{"no placement", func(s *signals.RequestSignals) { s.Placement = "" }, "US", false},
		{"no network", func(s *signals.RequestSignals) { s.Network = "" }, "US", false},
		{"no random", func(s *signals.RequestSignals) { s.RandomToken = "" }, "US", false},
		{"other country", func(s *signals.RequestSignals) {}, "CA", false},
		{"unknown country", func(s *signals.RequestSignals) {}, geoip.Unknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := full
			tt.mutate(&s)
			assert.Equal(t, tt.want, Qualified(s, tt.country, "US"))
		})
	}
}

func TestBotNotQualified(t *testing.T) {
	store, _ := newTestStore(t)
	e, _ := newTestEngine(store, &countingGeo{country: "US"}, nil)

	res := e.Classify(context.Background(), newRequest(fullCampaignQuery, "198.51.100.10",
		"Mozilla/5.0 (Windows NT 10.0) SomeCrawler/1.0"))
	assert.False(t, res.Qualified)
	assert.Equal(t, RouteDefault, res.Route)
}

func TestPersistFailureDoesNotAbort(t *testing.T) {
	store, err := ledger.Open(context.Background(), failingBackend{})
	require.NoError(t, err)
	e, _ := newTestEngine(store, &countingGeo{country: "US"}, nil)

	res := e.Classify(context.Background(), newRequest(fullCampaignQuery, "198.51.100.11", desktopUA))
	assert.True(t, res.ShowPrimaryContent)
	assert.True(t, res.PersistFailed)
	assert.True(t, res.LedgerUpdated)
	assert.True(t, res.Qualified)
}

func TestLedgerSurvivesRestart(t *testing.T) {
	store, backend := newTestStore(t)
	e, _ := newTestEngine(store, &countingGeo{country: "US"}, nil)
	ctx := context.Background()

	e.Classify(ctx, newRequest("/", "192.0.2.1", desktopUA))
	e.Classify(ctx, newRequest("/?gclid=x", "192.0.2.2", desktopUA))
	e.Classify(ctx, newRequest("/", "2001:db8::5", desktopUA))

	restarted, err := ledger.Open(ctx, backend)
	require.NoError(t, err)
	assert.ElementsMatch(t, store.Snapshot(), restarted.Snapshot())
}

func TestGeoNotCalledUnderLedgerLock(t *testing.T) {
	store, _ := newTestStore(t)
	var sawLockFree atomic.Bool
	geo := geoip.ResolverFunc(func(ctx context.Context, addr string) string {
		done := make(chan struct{})
		go func() {
			store.Contains("anything")
			close(done)
		}()
		select {
		case <-done:
			sawLockFree.Store(true)
		case <-time.After(time.Second):
		}
		return "US"
	})
	e, _ := newTestEngine(store, geo, nil)

	e.Classify(context.Background(), newRequest(fullCampaignQuery, "198.51.100.12", desktopUA))
	assert.True(t, sawLockFree.Load())
}

func TestConcurrentVisitsSameAddress(t *testing.T) {
	store, _ := newTestStore(t)
	e, _ := newTestEngine(store, &countingGeo{country: "US"}, nil)

	var wg sync.WaitGroup
	var updates atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if e.Classify(context.Background(), newRequest("/", "192.0.2.99", desktopUA)).LedgerUpdated {
				updates.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), updates.Load())
	assert.Equal(t, 1, store.Len())
}

func TestEmptyClientAddressSkipsLedger(t *testing.T) {
	store, _ := newTestStore(t)
	e, _ := newTestEngine(store, &countingGeo{country: "US"}, nil)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "@"
	res := e.Classify(context.Background(), r)
	assert.True(t, res.ShowPrimaryContent)
	assert.False(t, res.LedgerUpdated)
	assert.Equal(t, 0, store.Len())
}

func TestEmptyClientAddressSkipsGeo(t *testing.T) {
	store, _ := newTestStore(t)
	geo := &countingGeo{country: "US"}
	e, _ := newTestEngine(store, geo, nil)

	r := httptest.NewRequest(http.MethodGet, fullCampaignQuery, nil)
	r.RemoteAddr = "@"
	r.Header.Set("User-Agent", desktopUA)
	res := e.Classify(context.Background(), r)
	assert.True(t, res.ShowPrimaryContent)
	assert.False(t, res.Qualified)
	assert.Equal(t, int32(0), geo.calls.Load())
}

func TestClassifyLogsWithRequestLogger(t *testing.T) {
	store, err := ledger.Open(context.Background(), failingBackend{})
	require.NoError(t, err)
	e, _ := newTestEngine(store, &countingGeo{country: "US"}, nil)

	core, logs := observer.New(zap.InfoLevel)
	h := middleware.WithRequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.Classify(r.Context(), r)
	}))
	h.ServeHTTP(httptest.NewRecorder(), newRequest("/?gclid=x", "198.51.100.40", desktopUA))

	entries := logs.FilterMessageSnippet("ledger flush failed").All()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
	assert.Equal(t, "198.51.100.40", entries[0].ContextMap()["client_addr"])
}
