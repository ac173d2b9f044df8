package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/observability"
	"github.com/krati1611/smallhappinessclub/internal/ratelimit"
)

const sourceHTTP = "http"

// HTTPResolver queries an ip-api.com compatible provider:
// GET <base>/json/<addr> -> {"status":"success","countryCode":"US"}.
// A single attempt is made, bounded by the client timeout.
type HTTPResolver struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *ratelimit.KeyedLimiter
	limitKey   string
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

type providerResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	CountryCode string `json:"countryCode"`
}

// NewHTTPResolver creates a resolver for baseURL. limiter may be nil.
func NewHTTPResolver(baseURL string, timeout time.Duration, limiter *ratelimit.KeyedLimiter, logger *zap.Logger, metrics observability.MetricsRegistry) *HTTPResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	baseURL = strings.TrimRight(baseURL, "/")
	key := "geo:" + baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		key = "geo:" + u.Host
	}
	return &HTTPResolver{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeout:  timeout,
		limiter:  limiter,
		limitKey: key,
		logger:   logger,
		metrics:  metrics,
	}
}

// Resolve returns the provider's countryCode for addr, or Unknown on any
// failure or when the outbound rate limit is exhausted.
func (h *HTTPResolver) Resolve(ctx context.Context, addr string) string {
	if addr == "" {
		return Unknown
	}
	if !h.limiter.Allow(h.limitKey) {
		h.metrics.IncrementGeoLookups(sourceHTTP, "rate_limited")
		return Unknown
	}

	start := time.Now()
	cc, err := h.lookup(ctx, addr)
	h.metrics.RecordGeoLookupLatency(sourceHTTP, time.Since(start))
	switch {
	case err != nil:
		h.metrics.IncrementGeoLookups(sourceHTTP, "failure")
		h.logger.Warn("geo lookup failed, treating country as unknown",
			zap.String("addr", addr), zap.Error(err))
		return Unknown
	case cc == Unknown:
		h.metrics.IncrementGeoLookups(sourceHTTP, "unknown")
	default:
		h.metrics.IncrementGeoLookups(sourceHTTP, "success")
	}
	return cc
}

func (h *HTTPResolver) lookup(ctx context.Context, addr string) (string, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/json/"+url.PathEscape(addr), nil)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrLookup, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: http request: %v", ErrLookup, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			h.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: http %d: %s", ErrLookup, resp.StatusCode, string(body))
	}

	var pr providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrLookup, err)
	}
	if strings.EqualFold(pr.Status, "fail") {
		h.logger.Debug("geo provider could not place address",
			zap.String("addr", addr), zap.String("message", pr.Message))
		return Unknown, nil
	}
	return strings.ToUpper(strings.TrimSpace(pr.CountryCode)), nil
}
