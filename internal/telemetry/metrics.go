// Package telemetry provides application-level observability for the
// Feedbase backend.
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<FEEDBASE_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not part of the Gin router, so it sits
// outside authentication and rate limiting.
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/recommend)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Credential metrics.
//
// AuthFailuresTotal counts rejected authentication attempts by reason
// ("missing_header", "bad_format", "unknown_key", "revoked", "expired",
// "inactive_org", "bad_session"). The reason label is internal-only detail;
// clients always receive the same generic 401.
var (
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Total rejected authentication attempts, by internal reason.",
		},
		[]string{"reason"},
	)

	APIKeysIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_keys_issued_total",
			Help: "Total API keys issued.",
		},
	)
)

// OTP metrics.
//
// OtpRequestsTotal outcome is "issued" or "rate_limited".
// OtpVerificationsTotal outcome is "success", "mismatch", "expired",
// "already_used", or "attempts_exceeded".
var (
	OtpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_requests_total",
			Help: "Total OTP issuance requests, by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)

	OtpVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "Total OTP verification attempts, by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)
)

// Quota metrics.
//
// RateLimitRejectionsTotal is labelled by organization slug, not id, so
// dashboards stay readable; slugs are bounded by the tenant count.
// UsageWriteFailuresTotal counts failed finalize/append writes; these lose
// latency detail but never quota, so a non-zero rate is a warning, not an
// incident.
var (
	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Total requests rejected by the tenant hourly quota, by organization.",
		},
		[]string{"organization"},
	)

	UsageWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_write_failures_total",
			Help: "Total failed usage-record writes (finalize or append).",
		},
	)
)

// DBOpenConnections tracks the sql.DB pool size, sampled periodically by
// StartDBStatsCollector rather than per-request to avoid the overhead of
// sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// connection pool statistics every 30 seconds and updates the
// DBOpenConnections gauge. The goroutine exits cleanly when the database
// becomes unreachable (db.Ping fails), which happens automatically when the
// application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
