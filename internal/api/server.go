package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/analytics"
	"github.com/krati1611/smallhappinessclub/internal/classify"
	"github.com/krati1611/smallhappinessclub/internal/config"
	"github.com/krati1611/smallhappinessclub/internal/ledger"
	"github.com/krati1611/smallhappinessclub/internal/observability"
	"github.com/krati1611/smallhappinessclub/internal/ratelimit"
	"github.com/krati1611/smallhappinessclub/internal/render"
)

var tracer = otel.Tracer("smallhappiness/api")

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Engine    *classify.Engine
	Ledger    *ledger.Store
	Renderer  render.Renderer
	Analytics analytics.Recorder
	Metrics   observability.MetricsRegistry
	Config    config.Config

	// GeoLimiter is reported by /health when set.
	GeoLimiter *ratelimit.KeyedLimiter

	async *analytics.AsyncRecorder
}

// NewServer constructs a Server. Visits are handed to recorder through a
// bounded queue so analytics latency never reaches the visitor. A nil
// recorder disables visit analytics.
func NewServer(logger *zap.Logger, engine *classify.Engine, store *ledger.Store, renderer render.Renderer, recorder analytics.Recorder, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	s := &Server{
		Logger:    logger,
		Engine:    engine,
		Ledger:    store,
		Renderer:  renderer,
		Analytics: analytics.NoOp{},
		Metrics:   metrics,
		Config:    cfg,
	}
	switch recorder.(type) {
	case nil, analytics.NoOp:
	default:
		s.async = analytics.NewAsyncRecorder(recorder, cfg.AnalyticsQueueSize, cfg.AnalyticsWriteTimeout, metrics, logger.Named("analytics"))
		s.Analytics = s.async
	}
	return s
}

// Close flushes queued visits.
func (s *Server) Close(ctx context.Context) error {
	if s.async == nil {
		return nil
	}
	return s.async.Close(ctx)
}

// Register mounts the landing-page routes on r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/", s.IndexHandler).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/all-ips/", s.AllIPsHandler).Methods(http.MethodGet)
	r.HandleFunc("/all-ips", s.AllIPsHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
}
