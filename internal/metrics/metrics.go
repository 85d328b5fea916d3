// Package metrics provides Prometheus instrumentation for the settlement engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SettlementsTotal counts settlements executed, partitioned by period type.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_settlements_total",
		Help: "Total number of period settlements executed",
	}, []string{"period_type"})

	// SettlementsDegraded counts settlements where the configured payout
	// structure degraded to winner-take-all.
	SettlementsDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settle_settlements_degraded_total",
		Help: "Settlements degraded to winner-take-all for lack of participants",
	})

	// SettlementLatency tracks settlement execution latency.
	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settle_settlement_latency_seconds",
		Help:    "Settlement execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// PortfolioReprojections counts per-tick portfolio valuations.
	PortfolioReprojections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settle_portfolio_reprojections_total",
		Help: "Portfolio valuations recomputed on price ticks",
	})

	// PortfolioSubmissions counts submitted (and superseding) portfolios.
	PortfolioSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settle_portfolio_submissions_total",
		Help: "Portfolios submitted, including resubmissions",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settle_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settle_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
