package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/observability"
)

const sourceLocal = "local"

// MaxMindResolver answers from a local GeoLite2 database, or from a JSON list
// of CIDR ranges when the file is not an mmdb.
type MaxMindResolver struct {
	db       *geoip2.Reader
	fallback []cidrCountry
	metrics  observability.MetricsRegistry
}

type cidrCountry struct {
	net     *net.IPNet
	country string
}

// OpenMaxMind loads path. JSON fallback files look like
// [{"net":"203.0.113.0/24","country":"US"}].
func OpenMaxMind(path string, metrics observability.MetricsRegistry) (*MaxMindResolver, error) {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	m := &MaxMindResolver{metrics: metrics}
	db, err := geoip2.Open(path)
	if err == nil {
		m.db = db
		zap.L().Info("Loaded GeoIP database", zap.String("path", path))
		return m, nil
	}

	data, jerr := os.ReadFile(path)
	if jerr != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	var entries []struct {
		Net     string `json:"net"`
		Country string `json:"country"`
	}
	if jerr = json.Unmarshal(data, &entries); jerr != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	for _, e := range entries {
		if _, n, perr := net.ParseCIDR(e.Net); perr == nil {
			m.fallback = append(m.fallback, cidrCountry{net: n, country: e.Country})
		}
	}
	zap.L().Info("Loaded GeoIP JSON ranges", zap.String("path", path), zap.Int("ranges", len(m.fallback)))
	return m, nil
}

// Resolve returns the ISO country code for addr or Unknown.
func (m *MaxMindResolver) Resolve(ctx context.Context, addr string) string {
	if m == nil {
		return Unknown
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		m.metrics.IncrementGeoLookups(sourceLocal, "failure")
		return Unknown
	}
	cc := m.country(ip)
	if cc == Unknown {
		m.metrics.IncrementGeoLookups(sourceLocal, "unknown")
	} else {
		m.metrics.IncrementGeoLookups(sourceLocal, "success")
	}
	return cc
}

func (m *MaxMindResolver) country(ip net.IP) string {
	if m.db != nil {
		rec, err := m.db.Country(ip)
		if err == nil {
			return rec.Country.IsoCode
		}
	}
	for _, r := range m.fallback {
		if r.net.Contains(ip) {
			return r.country
		}
	}
	return Unknown
}

// Close releases resources associated with the database.
func (m *MaxMindResolver) Close() error {
	if m != nil && m.db != nil {
		return m.db.Close()
	}
	return nil
}
