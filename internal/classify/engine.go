// Package classify decides how a landing-page visit is routed and records
// the visitor in the IP ledger.
package classify

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/allowlist"
	"github.com/krati1611/smallhappinessclub/internal/geoip"
	"github.com/krati1611/smallhappinessclub/internal/ledger"
	"github.com/krati1611/smallhappinessclub/internal/middleware"
	"github.com/krati1611/smallhappinessclub/internal/observability"
	"github.com/krati1611/smallhappinessclub/internal/signals"
)

// Route names the branch a visit took. Every route serves the primary
// content; the value is recorded for logging and analytics.
type Route string

const (
	RouteAllowList         Route = "allowlist"
	RouteReturningCampaign Route = "returning_campaign"
	RouteQualified         Route = "qualified"
	RouteDefault           Route = "default"
)

var tracer = observability.Tracer("smallhappiness/classify")

// DefaultQualifiedCountry is the geo requirement for a qualified visit.
const DefaultQualifiedCountry = "US"

// Result is the outcome of classifying one request.
type Result struct {
	ShowPrimaryContent bool
	LedgerUpdated      bool
	// PersistFailed is set when the ledger changed in memory but the flush failed.
	PersistFailed bool

	Route       Route
	Qualified   bool
	AllowListed bool
	Country     string
	Signals     signals.RequestSignals
}

// Engine classifies requests. Ledger, Geo and AllowList may be nil, which
// disables the corresponding step.
type Engine struct {
	Ledger           *ledger.Store
	Geo              geoip.Resolver
	AllowList        *allowlist.List
	Extractor        signals.Extractor
	QualifiedCountry string
	Metrics          observability.MetricsRegistry
	Logger           *zap.Logger
}

// NewEngine returns an Engine with default metrics, logger and country.
func NewEngine(store *ledger.Store, geo geoip.Resolver, allow *allowlist.List, extractor signals.Extractor) *Engine {
	return &Engine{
		Ledger:           store,
		Geo:              geo,
		AllowList:        allow,
		Extractor:        extractor,
		QualifiedCountry: DefaultQualifiedCountry,
		Metrics:          observability.NewNoOpRegistry(),
		Logger:           zap.NewNop(),
	}
}

// Classify runs the full decision for r. It never fails: geo errors become
// Unknown and ledger flush errors are logged.
func (e *Engine) Classify(ctx context.Context, r *http.Request) Result {
	sig := e.Extractor.Extract(r)
	res := Result{ShowPrimaryContent: true, Signals: sig}
	logger := middleware.LoggerFromContext(ctx, e.logger()).With(zap.String("client_addr", sig.ClientAddress))

	if e.AllowList.Contains(sig.ClientAddress) {
		res.AllowListed = true
		res.Route = RouteAllowList
		e.metrics().IncrementClassifications(string(res.Route))
		return res
	}

	var returning bool
	if e.Ledger != nil && sig.ClientAddress != "" {
		obs, err := e.Ledger.Observe(ctx, sig.ClientAddress, sig.HasCampaignID)
		res.LedgerUpdated = obs.Updated
		returning = obs.Known && obs.Prior == ledger.MarkerCampaign
		if err != nil {
			res.PersistFailed = true
			logger.Error("ledger flush failed; keeping in-memory state", zap.Error(err))
		}
	}

	// The ledger lock is released by now; the provider call may be slow.
	if sig.HasCampaignID && sig.ClientAddress != "" && e.Geo != nil {
		geoCtx, span := tracer.Start(ctx, "GeoResolve")
		res.Country = e.Geo.Resolve(geoCtx, sig.ClientAddress)
		span.SetAttributes(attribute.String("geo.country", res.Country))
		span.End()
	}
	res.Qualified = Qualified(sig, res.Country, e.qualifiedCountry())

	switch {
	case returning:
		res.Route = RouteReturningCampaign
	case res.Qualified:
		res.Route = RouteQualified
	default:
		res.Route = RouteDefault
	}
	e.metrics().IncrementClassifications(string(res.Route))

	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("visit classified",
			zap.String("route", string(res.Route)),
			zap.Bool("qualified", res.Qualified),
			zap.Bool("ledger_updated", res.LedgerUpdated),
			zap.String("country", res.Country),
			zap.Bool("bot_like", sig.IsBotLike))
	}
	return res
}

// Qualified reports whether a visit satisfies every paid-visitor condition.
func Qualified(sig signals.RequestSignals, country, want string) bool {
	return sig.HasCampaignID &&
		sig.IsDesktopOS &&
		sig.HasAllCampaignParams() &&
		country != geoip.Unknown &&
		strings.EqualFold(country, want) &&
		!sig.IsBotLike
}

func (e *Engine) qualifiedCountry() string {
	if e.QualifiedCountry == "" {
		return DefaultQualifiedCountry
	}
	return e.QualifiedCountry
}

func (e *Engine) metrics() observability.MetricsRegistry {
	if e.Metrics == nil {
		return observability.NewNoOpRegistry()
	}
	return e.Metrics
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
