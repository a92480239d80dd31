package http

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

func (m *appMetrics) addExpense() { atomic.AddInt64(&m.totalExpenses, 1) }

func (m *appMetrics) addPanic() { atomic.AddInt64(&m.panics, 1) }

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports whether a user is signed in and their ledger synced.
// The server is ready to take a sign-in either way.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]any{
		"rate_limiter": map[string]any{
			"active_clients": s.rateLimiter.ActiveClients(),
			"status":         "ok",
		},
	}
	if sess, ok := s.sessions.Current(); ok {
		st := sess.State()
		checks["session"] = map[string]any{
			"status":  "signed_in",
			"synced":  st.Synced,
			"version": st.Version,
		}
	} else {
		checks["session"] = map[string]any{"status": "signed_out"}
	}
	if s.memo != nil {
		checks["view_cache"] = map[string]any{"entries": s.memo.Cache().Size()}
	}

	NewJSONResponse().Data(map[string]any{
		"status":    "ready",
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	counter := func(name, help string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %v\n\n", name, v)
	}
	gauge := func(name, help string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s %v\n\n", name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter("http_server_errors_total", "Total number of HTTP 5xx responses", traceMetrics.ServerErrors)
	counter("http_panics_total", "Total number of recovered handler panics", atomic.LoadInt64(&s.appMetrics.panics))
	counter("expenses_created_total", "Total number of expenses created", atomic.LoadInt64(&s.appMetrics.totalExpenses))
	counter("security_suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	counter("security_blocked_requests_total", "Total requests blocked", securityMetrics.BlockedRequests)
	counter("rate_limit_hits_total", "Total requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	gauge("rate_limit_active_clients", "Clients tracked by the rate limiter", rateLimitMetrics.ClientCount)

	if s.memo != nil {
		stats := s.memo.Cache().Stats()
		counter("view_cache_hits_total", "Aggregate view cache hits", stats.Hits)
		counter("view_cache_misses_total", "Aggregate view cache misses", stats.Misses)
		gauge("view_cache_entries", "Aggregate views currently cached", s.memo.Cache().Size())
	}

	gauge("uptime_seconds", "Server uptime in seconds", int64(time.Since(s.appMetrics.uptime).Seconds()))
}
