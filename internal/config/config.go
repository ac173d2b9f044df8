package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	TemplatesDir string
	StaticDir    string
	// Ledger storage configuration
	LedgerBackend     string
	LedgerPath        string
	LedgerFormat      string
	LedgerRedisKey    string
	LedgerSaveTimeout time.Duration
	RedisAddr         string
	PostgresDSN       string
	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	// Classification configuration
	AllowListPath     string
	TrustForwardedFor bool
	QualifiedCountry  string
	// Geo lookup configuration
	GeoProviderURL        string
	GeoTimeout            time.Duration
	GeoRateLimitEnabled   bool
	GeoRateLimitCapacity  int
	GeoRateLimitPerMinute int
	GeoIPDB               string
	// Visit analytics; empty DSN disables recording
	ClickHouseDSN         string
	AnalyticsQueueSize    int
	AnalyticsWriteTimeout time.Duration
	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
	// Log file rotation; empty LogFile logs to stderr only
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// Ledger backend names accepted by LEDGER_BACKEND.
const (
	LedgerBackendFile     = "file"
	LedgerBackendRedis    = "redis"
	LedgerBackendPostgres = "postgres"
)

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8000")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "smallhappiness")
	cfg.TemplatesDir = getenv("TEMPLATES_DIR", "")
	cfg.StaticDir = getenv("STATIC_DIR", "./static")

	cfg.LedgerBackend = getenv("LEDGER_BACKEND", LedgerBackendFile)
	cfg.LedgerPath = getenv("LEDGER_PATH", "logged_ips.json")
	cfg.LedgerFormat = getenv("LEDGER_FORMAT", "records")
	cfg.LedgerRedisKey = getenv("LEDGER_REDIS_KEY", "ledger:client_records")
	cfg.LedgerSaveTimeout = envDuration("LEDGER_SAVE_TIMEOUT", 5*time.Second)
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 5)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 2)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.AllowListPath = getenv("ALLOWLIST_PATH", "")
	cfg.TrustForwardedFor = envBool("TRUST_FORWARDED_FOR", false)
	cfg.QualifiedCountry = getenv("QUALIFIED_COUNTRY", "US")

	cfg.GeoProviderURL = getenv("GEO_PROVIDER_URL", "http://ip-api.com")
	cfg.GeoTimeout = envDuration("GEO_TIMEOUT", 3*time.Second)
	cfg.GeoRateLimitEnabled = envBool("GEO_RATE_LIMIT_ENABLED", true)
	// ip-api.com free tier allows 45 requests per minute per source address
	cfg.GeoRateLimitCapacity = envInt("GEO_RATE_LIMIT_CAPACITY", 45)
	cfg.GeoRateLimitPerMinute = envInt("GEO_RATE_LIMIT_PER_MINUTE", 45)
	cfg.GeoIPDB = getenv("GEOIP_DB", "")

	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "")
	cfg.AnalyticsQueueSize = envInt("ANALYTICS_QUEUE_SIZE", 1024)
	cfg.AnalyticsWriteTimeout = envDuration("ANALYTICS_WRITE_TIMEOUT", 2*time.Second)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	cfg.LogFile = getenv("LOG_FILE", "")
	cfg.LogMaxSizeMB = envInt("LOG_MAX_SIZE_MB", 50)
	cfg.LogMaxBackups = envInt("LOG_MAX_BACKUPS", 5)
	cfg.LogMaxAgeDays = envInt("LOG_MAX_AGE_DAYS", 28)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
