package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/observability"
	"github.com/krati1611/smallhappinessclub/internal/ratelimit"
)

func TestHTTPResolver(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
		outcome string
	}{
		{
			name: "success",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"success","countryCode":"us"}`))
			},
			want:    "US",
			outcome: "success",
		},
		{
			name: "provider fail status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"fail","message":"private range"}`))
			},
			want:    Unknown,
			outcome: "unknown",
		},
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "quota", http.StatusTooManyRequests)
			},
			want:    Unknown,
			outcome: "failure",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			want:    Unknown,
			outcome: "failure",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			metrics := observability.NewMockMetricsRegistry()
			r := NewHTTPResolver(srv.URL, time.Second, nil, zap.NewNop(), metrics)
			assert.Equal(t, tt.want, r.Resolve(context.Background(), "203.0.113.1"))
			assert.Equal(t, 1, metrics.Count(metrics.GeoLookups, "http/"+tt.outcome))
		})
	}
}

func TestHTTPResolverRequestPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"status":"success","countryCode":"US"}`))
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL+"/", time.Second, nil, nil, nil)
	r.Resolve(context.Background(), "198.51.100.4")
	assert.Equal(t, "/json/198.51.100.4", gotPath)
}

func TestHTTPResolverTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r := NewHTTPResolver(srv.URL, 50*time.Millisecond, nil, zap.NewNop(), nil)
	start := time.Now()
	assert.Equal(t, Unknown, r.Resolve(context.Background(), "203.0.113.1"))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHTTPResolverUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := NewHTTPResolver(url, time.Second, nil, zap.NewNop(), nil)
	assert.Equal(t, Unknown, r.Resolve(context.Background(), "203.0.113.1"))
}

func TestHTTPResolverRateLimited(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"status":"success","countryCode":"US"}`))
	}))
	defer srv.Close()

	metrics := observability.NewMockMetricsRegistry()
	limiter := ratelimit.NewKeyedLimiter(ratelimit.Config{Capacity: 1, PerMinute: 1, Enabled: true}, metrics)
	r := NewHTTPResolver(srv.URL, time.Second, limiter, zap.NewNop(), metrics)

	assert.Equal(t, "US", r.Resolve(context.Background(), "203.0.113.1"))
	assert.Equal(t, Unknown, r.Resolve(context.Background(), "203.0.113.2"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, metrics.Count(metrics.GeoLookups, "http/rate_limited"))
}

func TestMaxMindJSONFallback(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	m, err := OpenMaxMind("testdata/geo_fallback.json", metrics)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	assert.Equal(t, "US", m.Resolve(context.Background(), "203.0.113.50"))
	assert.Equal(t, "DE", m.Resolve(context.Background(), "198.51.100.1"))
	assert.Equal(t, Unknown, m.Resolve(context.Background(), "192.0.2.1"))
	assert.Equal(t, Unknown, m.Resolve(context.Background(), "bogus"))
	assert.Equal(t, 2, metrics.Count(metrics.GeoLookups, "local/success"))
}

func TestOpenMaxMindMissing(t *testing.T) {
	_, err := OpenMaxMind("testdata/does-not-exist.mmdb", nil)
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	unknown := ResolverFunc(func(ctx context.Context, addr string) string { return Unknown })
	us := ResolverFunc(func(ctx context.Context, addr string) string { return "US" })
	called := false
	never := ResolverFunc(func(ctx context.Context, addr string) string { called = true; return "FR" })

	assert.Equal(t, "US", Chain{nil, unknown, us, never}.Resolve(context.Background(), "1.1.1.1"))
	assert.False(t, called)
	assert.Equal(t, Unknown, Chain{unknown}.Resolve(context.Background(), "1.1.1.1"))
	assert.Equal(t, Unknown, Chain{}.Resolve(context.Background(), "1.1.1.1"))
}
