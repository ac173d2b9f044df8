package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PostgresBackend stores one row per address in client_records.
type PostgresBackend struct {
	DB *sql.DB
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS client_records (
    address TEXT PRIMARY KEY,
    marker TEXT NOT NULL CHECK (marker IN ('plain', 'campaign')),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// PoolConfig mirrors the connection pool settings in config.Config.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// InitPostgresBackend opens dsn with tracing, applies the pool settings and
// creates the table if needed.
func InitPostgresBackend(ctx context.Context, dsn string, pool PoolConfig) (*PostgresBackend, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &PostgresBackend{DB: db}
	if err := p.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	zap.L().Info("Connected to Postgres",
		zap.Int("max_open_conns", pool.MaxOpenConns),
		zap.Int("max_idle_conns", pool.MaxIdleConns),
		zap.Duration("conn_max_lifetime", pool.ConnMaxLifetime))
	return p, nil
}

func (p *PostgresBackend) ensureSchema(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Name() string { return "postgres" }

// Load reads every row. Rows violating the marker check cannot exist, but an
// unexpected value is still reported as malformed.
func (p *PostgresBackend) Load(ctx context.Context) ([]Record, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT address, marker FROM client_records`)
	if err != nil {
		return nil, storageErr(p.Name(), "load", err)
	}
	defer func() { _ = rows.Close() }()

	merged := make(map[string]Marker)
	for rows.Next() {
		var addr, raw string
		if err := rows.Scan(&addr, &raw); err != nil {
			return nil, storageErr(p.Name(), "load", err)
		}
		m, err := ParseMarker(raw)
		if err != nil {
			return nil, err
		}
		merged[addr] = m
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(p.Name(), "load", err)
	}
	return sortedRecords(merged), nil
}

// Save makes the table equal to records inside one transaction.
func (p *PostgresBackend) Save(ctx context.Context, records []Record) error {
	addrs := make([]string, len(records))
	markers := make([]string, len(records))
	for i, r := range records {
		addrs[i] = r.Address
		markers[i] = string(r.Marker)
	}

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(p.Name(), "begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM client_records WHERE NOT (address = ANY($1))`, pq.Array(addrs)); err != nil {
		return storageErr(p.Name(), "save", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO client_records (address, marker)
        SELECT a, m FROM unnest($1::text[], $2::text[]) AS t(a, m)
        ON CONFLICT (address) DO UPDATE
        SET marker = EXCLUDED.marker, updated_at = now()
        WHERE client_records.marker <> EXCLUDED.marker`,
		pq.Array(addrs), pq.Array(markers)); err != nil {
		return storageErr(p.Name(), "save", err)
	}
	return storageErr(p.Name(), "commit", tx.Commit())
}

// Close terminates the connection pool.
func (p *PostgresBackend) Close() error {
	if p == nil || p.DB == nil {
		return nil
	}
	return p.DB.Close()
}
