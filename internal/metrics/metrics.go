// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed trades, partitioned by outcome.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "college_market_trades_total",
		Help: "Total number of trades executed",
	}, []string{"outcome"})

	// TradeLatency observes end-to-end trade execution time.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "college_market_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// TradeRejections counts trades refused before commit, by error code.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "college_market_trade_rejections_total",
		Help: "Trades rejected by validation or business rules",
	}, []string{"reason"})

	// TradeVolumeCents tracks cumulative cents spent on shares.
	TradeVolumeCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "college_market_trade_volume_cents_total",
		Help: "Cumulative trade cost in cents",
	}, []string{"outcome"})

	// MarketsResolved counts resolutions by winning outcome.
	MarketsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "college_market_markets_resolved_total",
		Help: "Markets resolved, by winning outcome",
	}, []string{"outcome"})

	// PayoutCents tracks cumulative cents credited at resolution.
	PayoutCents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "college_market_payout_cents_total",
		Help: "Cumulative resolution payouts in cents",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "college_market_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "college_market_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "college_market_http_request_duration_seconds",
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
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern uses the chi route pattern as the path label to keep
// cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
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

// Hijack lets the WebSocket upgrade pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
