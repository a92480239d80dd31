package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Handler: slog.NewTextHandler(&buf, nil)})
	m := NewMiddleware(logger, func(*http.Request) string { return "10.0.0.1" })

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/view?period=week", nil))

	require.NotEmpty(t, seen)
	assert.True(t, strings.HasPrefix(seen, "req_"))
	assert.Equal(t, seen, rr.Header().Get(HeaderRequestID))
	assert.Contains(t, buf.String(), "HTTP request completed")
	assert.Contains(t, buf.String(), "status_code=418")
	assert.Contains(t, buf.String(), "request_id="+seen)
	assert.Contains(t, buf.String(), "client_ip=10.0.0.1")
	assert.Equal(t, int64(1), m.GetMetrics().TotalRequests)
}

func TestMiddlewareKeepsCallerRequestID(t *testing.T) {
	m := NewMiddleware(nil, nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc-123", GetRequestID(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "bad id\nwith newline")
	rr = httptest.NewRecorder()
	m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rr, req)
	assert.True(t, strings.HasPrefix(rr.Header().Get(HeaderRequestID), "req_"))
}

func TestMiddlewareCountsServerErrors(t *testing.T) {
	m := NewMiddleware(nil, nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, int64(1), m.GetMetrics().ServerErrors)
}

func TestGetRequestIDMissing(t *testing.T) {
	assert.Empty(t, GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
