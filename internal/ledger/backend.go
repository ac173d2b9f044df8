package ledger

import (
	"context"
	"fmt"

	"github.com/krati1611/smallhappinessclub/internal/config"
)

// NewBackend builds the durable backend selected by cfg.LedgerBackend.
func NewBackend(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.LedgerBackend {
	case config.LedgerBackendFile, "":
		return NewFileBackend(cfg.LedgerPath, FileFormat(cfg.LedgerFormat))
	case config.LedgerBackendRedis:
		return InitRedisBackend(ctx, cfg.RedisAddr, cfg.LedgerRedisKey)
	case config.LedgerBackendPostgres:
		return InitPostgresBackend(ctx, cfg.PostgresDSN, PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}
