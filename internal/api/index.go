package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/analytics"
	"github.com/krati1611/smallhappinessclub/internal/classify"
	"github.com/krati1611/smallhappinessclub/internal/middleware"
	"github.com/krati1611/smallhappinessclub/internal/render"
)

const pageTitle = "Small Happiness Club"

// fallbackPage is served if the template fails so the visitor always gets a page.
const fallbackPage = `<!DOCTYPE html><html><head><title>Small Happiness Club</title></head><body><h1>Small Happiness Club</h1></body></html>`

// IndexHandler handles GET / : it classifies the visit, records it in the
// ledger and serves the primary page. HEAD returns the same headers without
// classifying, so probes never touch the ledger.
func (s *Server) IndexHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "IndexHandler",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "index"
	method := r.Method
	reqID := middleware.RequestIDFromContext(ctx)

	var res classify.Result
	if method != http.MethodHead {
		res = s.Engine.Classify(ctx, r.WithContext(ctx))
		span.SetAttributes(
			attribute.String("classify.route", string(res.Route)),
			attribute.Bool("classify.qualified", res.Qualified),
			attribute.Bool("classify.ledger_updated", res.LedgerUpdated),
		)
	}

	// The body never depends on the classification.
	var buf bytes.Buffer
	status := http.StatusOK
	if s.Renderer != nil {
		data := render.PageData{Title: pageTitle, RequestID: reqID}
		if err := s.Renderer.Render(&buf, render.MainTemplate, data); err != nil {
			logger.Error("render page failed, serving fallback", zap.Error(err))
			buf.Reset()
		}
	}
	if buf.Len() == 0 {
		buf.WriteString(fallbackPage)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	if method != http.MethodHead {
		_, _ = buf.WriteTo(w)
		if err := s.Analytics.RecordVisit(ctx, visitFromResult(reqID, res)); err != nil && !errors.Is(err, analytics.ErrUnavailable) {
			logger.Warn("record visit failed", zap.Error(err))
		}
	}

	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

func visitFromResult(requestID string, res classify.Result) analytics.Visit {
	sig := res.Signals
	return analytics.Visit{
		Timestamp:     time.Now(),
		RequestID:     requestID,
		ClientAddress: sig.ClientAddress,
		Route:         string(res.Route),
		Qualified:     res.Qualified,
		AllowListed:   res.AllowListed,
		LedgerUpdated: res.LedgerUpdated,
		HasCampaignID: sig.HasCampaignID,
		CampaignID:    analytics.OptionalString(sig.CampaignID),
		Placement:     analytics.OptionalString(sig.Placement),
		Network:       analytics.OptionalString(sig.Network),
		Country:       analytics.OptionalString(res.Country),
		DeviceType:    analytics.OptionalString(sig.Device.DeviceType),
		OS:            analytics.OptionalString(sig.Device.OS),
		Browser:       analytics.OptionalString(sig.Device.Browser),
		BotLike:       sig.IsBotLike,
		KnownCrawler:  sig.Device.KnownCrawler,
	}
}
