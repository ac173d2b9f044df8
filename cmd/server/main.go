package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/allowlist"
	"github.com/krati1611/smallhappinessclub/internal/analytics"
	"github.com/krati1611/smallhappinessclub/internal/api"
	"github.com/krati1611/smallhappinessclub/internal/classify"
	"github.com/krati1611/smallhappinessclub/internal/config"
	"github.com/krati1611/smallhappinessclub/internal/geoip"
	"github.com/krati1611/smallhappinessclub/internal/ledger"
	"github.com/krati1611/smallhappinessclub/internal/middleware"
	"github.com/krati1611/smallhappinessclub/internal/observability"
	"github.com/krati1611/smallhappinessclub/internal/ratelimit"
	"github.com/krati1611/smallhappinessclub/internal/render"
	"github.com/krati1611/smallhappinessclub/internal/signals"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithConfig(observability.LogOptions{
		ServiceName: cfg.ServiceName,
		Level:       observability.LevelFromEnv(),
		File:        cfg.LogFile,
		MaxSizeMB:   cfg.LogMaxSizeMB,
		MaxBackups:  cfg.LogMaxBackups,
		MaxAgeDays:  cfg.LogMaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	// Malformed static data must stop startup.
	allow, err := allowlist.Load(cfg.AllowListPath)
	if err != nil {
		return fmt.Errorf("load allow-list: %w", err)
	}

	backend, err := ledger.NewBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init ledger backend: %w", err)
	}
	store, err := ledger.Open(ctx, backend,
		ledger.WithLogger(logger.Named("ledger")),
		ledger.WithMetrics(metricsRegistry),
		ledger.WithSaveTimeout(cfg.LedgerSaveTimeout))
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("load ledger: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("ledger close", zap.Error(err))
		}
	}()

	geoLimiter := ratelimit.NewKeyedLimiter(ratelimit.Config{
		Capacity:  cfg.GeoRateLimitCapacity,
		PerMinute: cfg.GeoRateLimitPerMinute,
		Enabled:   cfg.GeoRateLimitEnabled,
	}, metricsRegistry)
	geo, closeGeo, err := buildGeoResolver(cfg, geoLimiter, logger, metricsRegistry)
	if err != nil {
		return err
	}
	defer closeGeo()

	var recorder analytics.Recorder = analytics.NoOp{}
	if cfg.ClickHouseDSN != "" {
		ch, err := analytics.InitClickHouse(ctx, cfg.ClickHouseDSN, metricsRegistry)
		if err != nil {
			return fmt.Errorf("failed to connect clickhouse: %w", err)
		}
		defer ch.Close()
		recorder = ch
	}

	renderer, err := render.New(cfg.TemplatesDir)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	engine := classify.NewEngine(store, geo, allow, signals.Extractor{TrustForwardedFor: cfg.TrustForwardedFor})
	engine.QualifiedCountry = cfg.QualifiedCountry
	engine.Metrics = metricsRegistry
	engine.Logger = logger.Named("classify")

	srvDeps := api.NewServer(logger, engine, store, renderer, recorder, metricsRegistry, cfg)
	srvDeps.GeoLimiter = geoLimiter

	r := mux.NewRouter()
	r.Use(middleware.WithRequestLogger(logger))
	srvDeps.Register(r)

	// Static file server for serving static assets like HTML, CSS, JS
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))

	r.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, "landing"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Landing server running",
		zap.String("addr", addr),
		zap.String("ledger_backend", store.BackendName()),
		zap.Int("ledger_records", store.Len()),
		zap.Int("allow_list_entries", allow.Len()))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := srvDeps.Close(shutdownCtx); err != nil {
		logger.Warn("visit queue not drained", zap.Error(err))
	}
	for _, st := range geoLimiter.GetStats() {
		logger.Info("geo rate limit", zap.Stringer("stats", st))
	}

	// Final flush so a failed per-request save is retried once on exit.
	if err := store.Save(shutdownCtx); err != nil {
		logger.Error("final ledger flush", zap.Error(err))
	}
	return nil
}

// buildGeoResolver chains the local database (when configured) in front of
// the HTTP provider.
func buildGeoResolver(cfg config.Config, limiter *ratelimit.KeyedLimiter, logger *zap.Logger, metrics observability.MetricsRegistry) (geoip.Resolver, func(), error) {
	httpResolver := geoip.NewHTTPResolver(cfg.GeoProviderURL, cfg.GeoTimeout, limiter, logger.Named("geo"), metrics)

	if cfg.GeoIPDB == "" {
		return httpResolver, func() {}, nil
	}
	local, err := geoip.OpenMaxMind(cfg.GeoIPDB, metrics)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load geoip db: %w", err)
	}
	closeFn := func() {
		if err := local.Close(); err != nil {
			logger.Error("geoip close", zap.Error(err))
		}
	}
	return geoip.Chain{local, httpResolver}, closeFn, nil
}
