package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWithRequestLoggerAssignsID(t *testing.T) {
	fallback := zap.NewNop()
	var seenID string
	var seenLogger *zap.Logger
	h := WithRequestLogger(fallback)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
		seenLogger = LoggerFromRequest(r, fallback)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := uuid.Parse(seenID)
	assert.NoError(t, err)
	assert.Equal(t, seenID, rec.Header().Get(RequestIDHeader))
	assert.NotSame(t, fallback, seenLogger)
}

func TestWithRequestLoggerKeepsValidUpstreamID(t *testing.T) {
	upstream := uuid.NewString()
	var seenID string
	h := WithRequestLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, upstream)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, upstream, seenID)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "not-a-uuid", seenID)
}

func TestLoggerFromContextFallback(t *testing.T) {
	fallback := zap.NewNop()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Same(t, fallback, LoggerFromRequest(req, fallback))
	assert.Empty(t, RequestIDFromContext(req.Context()))
}
