package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	applog "tally/internal/log"
)

// handleHealth is the liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	})
}

// handleReady checks templates, the backing store and the tarot deck.
// Only the first two decide readiness.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.ledger.Ping(ctx); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Readiness store ping failed",
			applog.FieldError, err,
			applog.FieldComponent, applog.ComponentStore)
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if s.deck == nil {
		checks["tarot"] = "not_configured"
	} else {
		checks["tarot"] = map[string]any{"cards": s.deck.Len()}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()
	stats := s.ledger.Stats()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_errors_total", "counter", "Total number of HTTP 5xx responses", traceMetrics.TotalErrors)
	metric("http_response_time_microseconds", "gauge", "Moving average response time", traceMetrics.AverageResponseTime)
	metric("transactions_recorded_total", "counter", "Transactions recorded by this instance", stats.Recorded)
	metric("cache_invalidations_total", "counter", "Read cache invalidations", stats.Invalidations)

	names := make([]string, 0, len(stats.Caches))
	for name := range stats.Caches {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "# HELP cache_hits_total Read cache hits\n# TYPE cache_hits_total counter\n")
	for _, name := range names {
		fmt.Fprintf(w, "cache_hits_total{cache=%q} %d\n", name, stats.Caches[name].Hits)
	}
	fmt.Fprintf(w, "\n# HELP cache_misses_total Read cache misses\n# TYPE cache_misses_total counter\n")
	for _, name := range names {
		fmt.Fprintf(w, "cache_misses_total{cache=%q} %d\n", name, stats.Caches[name].Misses)
	}
	fmt.Fprintf(w, "\n# HELP cache_entries Current cache entries\n# TYPE cache_entries gauge\n")
	for _, name := range names {
		fmt.Fprintf(w, "cache_entries{cache=%q} %d\n", name, stats.Caches[name].Entries)
	}
	fmt.Fprintln(w)

	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(s.now().Sub(s.started).Seconds()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
