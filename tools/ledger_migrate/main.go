package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/config"
	"github.com/krati1611/smallhappinessclub/internal/ledger"
	"github.com/krati1611/smallhappinessclub/internal/observability"
)

var (
	fromPath = flag.String("from", "", "source ledger file (records or logged_ips document)")
	dryRun   = flag.Bool("dry-run", false, "report what would change without saving")
	timeout  = flag.Duration("timeout", time.Minute, "overall deadline")
)

func main() {
	flag.Parse()

	logger, err := observability.InitLoggerWithService("ledger-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *fromPath == "" {
		fmt.Fprintln(os.Stderr, "-from required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := migrate(ctx, logger, config.Load(), *fromPath, *dryRun); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
}

// migrate merges every record of the source file into the configured
// backend. Existing campaign markers are never downgraded.
func migrate(ctx context.Context, logger *zap.Logger, cfg config.Config, from string, dryRun bool) error {
	src, err := ledger.NewFileBackend(from, ledger.FormatRecords)
	if err != nil {
		return err
	}
	records, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	dst, err := ledger.NewBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init destination: %w", err)
	}
	store, err := ledger.Open(ctx, dst, ledger.WithLogger(logger))
	if err != nil {
		_ = dst.Close()
		return fmt.Errorf("load destination: %w", err)
	}
	defer func() { _ = store.Close() }()

	before := store.Len()
	changed := 0
	for _, r := range records {
		if store.Mark(r.Address, r.Marker) {
			changed++
		}
	}
	logger.Info("merge computed",
		zap.String("destination", store.BackendName()),
		zap.Int("source_records", len(records)),
		zap.Int("existing_records", before),
		zap.Int("changed", changed),
		zap.Int("total", store.Len()))

	if dryRun || changed == 0 {
		return nil
	}
	return store.Save(ctx)
}
