package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/krati1611/smallhappinessclub/internal/ratelimit"
)

// HealthHandler responds with a simple status check, the ledger size and
// per-provider geo rate limit counters.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	size := 0
	if s.Ledger != nil {
		size = s.Ledger.Len()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(struct {
		Status       string                     `json:"status"`
		LedgerSize   int                        `json:"ledger_size"`
		GeoRateLimit map[string]ratelimit.Stats `json:"geo_rate_limit,omitempty"`
	}{"ok", size, s.GeoLimiter.GetStats()})

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
