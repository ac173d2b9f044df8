package ledger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBackend stores the ledger as a single Redis hash of address -> marker.
type RedisBackend struct {
	Client *redis.Client
	key    string
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	return &RedisBackend{Client: client, key: key}
}

// InitRedisBackend connects to addr with tracing enabled.
func InitRedisBackend(ctx context.Context, addr, key string) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr), zap.String("key", key))
	return NewRedisBackend(client, key), nil
}

func (r *RedisBackend) Name() string { return "redis" }

// Load reads the hash. A missing key is an empty ledger.
func (r *RedisBackend) Load(ctx context.Context) ([]Record, error) {
	vals, err := r.Client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, storageErr(r.Name(), "load", err)
	}
	merged := make(map[string]Marker, len(vals))
	for addr, raw := range vals {
		if addr == "" {
			return nil, fmt.Errorf("%w: empty address in %s", ErrMalformedLedger, r.key)
		}
		m, err := ParseMarker(raw)
		if err != nil {
			return nil, err
		}
		merged[addr] = m
	}
	return sortedRecords(merged), nil
}

// Save replaces the hash in one MULTI/EXEC transaction.
func (r *RedisBackend) Save(ctx context.Context, records []Record) error {
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(records) == 0 {
			return nil
		}
		fields := make([]interface{}, 0, len(records)*2)
		for _, rec := range records {
			fields = append(fields, rec.Address, string(rec.Marker))
		}
		pipe.HSet(ctx, r.key, fields...)
		return nil
	})
	return storageErr(r.Name(), "save", err)
}

// Close shuts down the Redis client.
func (r *RedisBackend) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
