package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/krati1611/smallhappinessclub/internal/analytics"
	"github.com/krati1611/smallhappinessclub/internal/config"
	"github.com/krati1611/smallhappinessclub/internal/observability"
)

func main() {
	logger, err := observability.InitLoggerWithService("query-visits")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var addr string
	var dsn string
	var limit int
	var since time.Duration
	flag.StringVar(&addr, "addr", "", "client address; omit to print per-route counts")
	flag.StringVar(&dsn, "dsn", "", "ClickHouse DSN")
	flag.IntVar(&limit, "limit", 20, "maximum visits to print for -addr")
	flag.DurationVar(&since, "since", 24*time.Hour, "look-back window for route counts")
	flag.Parse()

	if dsn == "" {
		cfg := config.Load()
		dsn = cfg.ClickHouseDSN
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "dsn required (flag or CLICKHOUSE_DSN)")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := analytics.InitClickHouse(ctx, dsn, observability.NewNoOpRegistry())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect clickhouse: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	var out any
	if addr != "" {
		out, err = a.GetVisitsByAddress(ctx, addr, limit)
	} else {
		out, err = a.CountByRoute(ctx, time.Now().Add(-since))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "query visits: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode visits: %v\n", err)
		os.Exit(1)
	}
}
