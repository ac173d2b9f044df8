package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/krati1611/smallhappinessclub/internal/observability"
)

// Recorder stores landing-page visits. Implementations return ErrUnavailable
// when the underlying storage is not configured.
type Recorder interface {
	RecordVisit(ctx context.Context, v Visit) error
}

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = errors.New("analytics unavailable")

// Visit is one classified request.
type Visit struct {
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id"`
	ClientAddress string    `json:"client_address"`
	Route         string    `json:"route"`
	Qualified     bool      `json:"qualified"`
	AllowListed   bool      `json:"allow_listed"`
	LedgerUpdated bool      `json:"ledger_updated"`
	HasCampaignID bool      `json:"has_campaign_id"`
	CampaignID    *string   `json:"campaign_id"`
	Placement     *string   `json:"placement"`
	Network       *string   `json:"network"`
	Country       *string   `json:"country"`
	DeviceType    *string   `json:"device_type"`
	OS            *string   `json:"os"`
	Browser       *string   `json:"browser"`
	BotLike       bool      `json:"bot_like"`
	KnownCrawler  bool      `json:"known_crawler"`
}

// RouteCount is one row of CountByRoute.
type RouteCount struct {
	Route string `json:"route"`
	Count uint64 `json:"count"`
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

var _ Recorder = (*Analytics)(nil)

const createVisitsSQL = `CREATE TABLE IF NOT EXISTS visits (
       timestamp       DateTime,
       request_id      String,
       client_address  String,
       route           LowCardinality(String),
       qualified       UInt8,
       allow_listed    UInt8,
       ledger_updated  UInt8,
       has_campaign_id UInt8,
       campaign_id     Nullable(String),
       placement       Nullable(String),
       network         Nullable(String),
       country         Nullable(String),
       device_type     Nullable(String),
       os              Nullable(String),
       browser         Nullable(String),
       bot_like        UInt8,
       known_crawler   UInt8
   ) ENGINE=MergeTree() ORDER BY (route, timestamp)`

// InitClickHouse connects to ClickHouse and ensures the visits table exists.
func InitClickHouse(ctx context.Context, dsn string, metrics observability.MetricsRegistry) (*Analytics, error) {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(10)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createVisitsSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db, Metrics: metrics}, nil
}

// RecordVisit inserts a single row into the visits table.
func (a *Analytics) RecordVisit(ctx context.Context, v Visit) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now()
	}

	stmt := `INSERT INTO visits (timestamp, request_id, client_address, route, qualified, allow_listed, ledger_updated, has_campaign_id, campaign_id, placement, network, country, device_type, os, browser, bot_like, known_crawler) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, visitArgs(v)...); err != nil {
		a.metrics().IncrementEvent("visit", "failure")
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("request_id", v.RequestID))
		return fmt.Errorf("insert visit: %w", err)
	}
	a.metrics().IncrementEvent("visit", "success")
	return nil
}

func visitArgs(v Visit) []any {
	return []any{
		v.Timestamp.UTC(), v.RequestID, v.ClientAddress, v.Route,
		boolToUInt8(v.Qualified), boolToUInt8(v.AllowListed), boolToUInt8(v.LedgerUpdated), boolToUInt8(v.HasCampaignID),
		nullString(v.CampaignID), nullString(v.Placement), nullString(v.Network), nullString(v.Country),
		nullString(v.DeviceType), nullString(v.OS), nullString(v.Browser),
		boolToUInt8(v.BotLike), boolToUInt8(v.KnownCrawler),
	}
}

// OptionalString returns nil for "" so the column is stored as NULL.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// GetVisitsByAddress returns the most recent visits for addr, newest first.
func (a *Analytics) GetVisitsByAddress(ctx context.Context, addr string, limit int) ([]Visit, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT timestamp, request_id, client_address, route, qualified, allow_listed, ledger_updated, has_campaign_id, campaign_id, placement, network, country, device_type, os, browser, bot_like, known_crawler FROM visits WHERE client_address=? ORDER BY timestamp DESC LIMIT ?`
	rows, err := a.DB.QueryContext(ctx, query, addr, limit)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var visits []Visit
	for rows.Next() {
		var v Visit
		var qualified, allowListed, updated, campaign, bot, crawler uint8
		if err := rows.Scan(&v.Timestamp, &v.RequestID, &v.ClientAddress, &v.Route,
			&qualified, &allowListed, &updated, &campaign,
			&v.CampaignID, &v.Placement, &v.Network, &v.Country,
			&v.DeviceType, &v.OS, &v.Browser, &bot, &crawler); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		v.Qualified, v.AllowListed, v.LedgerUpdated, v.HasCampaignID = qualified == 1, allowListed == 1, updated == 1, campaign == 1
		v.BotLike, v.KnownCrawler = bot == 1, crawler == 1
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return visits, nil
}

// CountByRoute returns visit counts per route since the given time.
func (a *Analytics) CountByRoute(ctx context.Context, since time.Time) ([]RouteCount, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	rows, err := a.DB.QueryContext(ctx,
		`SELECT route, count() FROM visits WHERE timestamp >= ? GROUP BY route ORDER BY route`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query route counts: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var out []RouteCount
	for rows.Next() {
		var rc RouteCount
		if err := rows.Scan(&rc.Route, &rc.Count); err != nil {
			return nil, fmt.Errorf("scan route count: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (a *Analytics) metrics() observability.MetricsRegistry {
	if a.Metrics == nil {
		return observability.NewNoOpRegistry()
	}
	return a.Metrics
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
