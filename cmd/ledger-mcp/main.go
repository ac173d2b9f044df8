// Command ledger-mcp exposes read-only ledger and visit tools over MCP stdio.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/allowlist"
	"github.com/krati1611/smallhappinessclub/internal/analytics"
	"github.com/krati1611/smallhappinessclub/internal/config"
	"github.com/krati1611/smallhappinessclub/internal/ledger"
	"github.com/krati1611/smallhappinessclub/internal/observability"
)

func main() {
	cfg := config.Load()

	// stdout carries the protocol, so logs go to LOG_FILE and stderr only.
	logger, err := observability.InitLoggerWithConfig(observability.LogOptions{
		ServiceName: cfg.ServiceName + "-mcp",
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
	defer func() { _ = logger.Sync() }()

	if err := run(logger, cfg); err != nil {
		logger.Error("mcp server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := ledger.NewBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init ledger backend: %w", err)
	}
	defer func() { _ = backend.Close() }()

	allow, err := allowlist.Load(cfg.AllowListPath)
	if err != nil {
		return fmt.Errorf("load allow-list: %w", err)
	}

	tools := &LedgerTools{
		backend:   backend,
		allow:     allow,
		logger:    logger,
		callLimit: 10 * time.Second,
	}
	if cfg.ClickHouseDSN != "" {
		ch, err := analytics.InitClickHouse(ctx, cfg.ClickHouseDSN, nil)
		if err != nil {
			logger.Warn("clickhouse unavailable, visit tools disabled", zap.Error(err))
		} else {
			defer ch.Close()
			tools.visits = ch
		}
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "smallhappiness-ledger",
		Version: "1.0.0",
	}, nil)
	registerTools(server, tools)

	var logBuffer bytes.Buffer
	transport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	logger.Info("MCP server running via stdio", zap.String("ledger_backend", backend.Name()))
	if err := server.Run(ctx, transport); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp run: %w (transcript: %s)", err, logBuffer.String())
	}
	return nil
}
