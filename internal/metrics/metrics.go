// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestsTotal counts HTTP requests by method, route pattern and status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goals_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP latency in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goals_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// AuthAttemptsTotal counts register and login attempts by outcome.
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goals_auth_attempts_total",
			Help: "Register and login attempts",
		},
		[]string{"operation", "outcome"},
	)

	// TokensRejectedTotal counts requests turned away by the auth gate.
	TokensRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goals_tokens_rejected_total",
			Help: "Requests rejected by the auth gate",
		},
		[]string{"reason"},
	)

	// RateLimitedTotal counts auth requests rejected by the limiter.
	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "goals_auth_rate_limited_total",
			Help: "Auth requests rejected by the rate limiter",
		},
	)

	// EventsPrunedTotal counts activity events removed by retention.
	EventsPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "goals_events_pruned_total",
			Help: "Activity events removed by the retention job",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthAttemptsTotal,
		TokensRejectedTotal,
		RateLimitedTotal,
		EventsPrunedTotal,
	)
}

// Middleware records request count and latency keyed by the chi route
// pattern, so ids in paths do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
