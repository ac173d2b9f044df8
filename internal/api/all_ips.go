package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/ledger"
	"github.com/krati1611/smallhappinessclub/internal/middleware"
)

// AllIPsHandler dumps the whole ledger as {"logged_ips": [...]} in the legacy
// encoding existing consumers read. It is unauthenticated and unpaginated.
func (s *Server) AllIPsHandler(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "AllIPsHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/all-ips/"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "all_ips"
	const method = "GET"

	var ips []string
	if s.Ledger != nil {
		ips = ledger.EncodeLegacy(s.Ledger.Snapshot())
	}
	if ips == nil {
		ips = []string{}
	}
	span.SetAttributes(attribute.Int("ledger.size", len(ips)))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string][]string{"logged_ips": ips}); err != nil {
		logger.Warn("write all-ips response", zap.Error(err))
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
