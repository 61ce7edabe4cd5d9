package metrics

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"strconv"
	"time"
)

var (
	// ReservationsTotal counts checkout attempts by outcome
	// (created, duplicate, validation, contention, insufficient_stock, lock_unavailable, error).
	ReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_reservations_total",
			Help: "Checkout attempts by outcome",
		},
		[]string{"outcome"},
	)

	LockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_acquire_total",
			Help: "Lease acquisition attempts by namespace and result",
		},
		[]string{"namespace", "result"},
	)

	OrderTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Committed order status transitions",
		},
		[]string{"from", "to"},
	)

	SweepReleasedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_sweep_released_total",
			Help: "Expired reservations released by the sweeper",
		},
	)

	SweepErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_sweep_errors_total",
			Help: "Expired reservations the sweeper failed to release",
		},
	)

	ReservedStockClampedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reserved_stock_clamped_total",
			Help: "Releases that would have driven reserved_stock below zero",
		},
	)

	ConfirmShortfallTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_confirm_shortfall_total",
			Help: "Confirmations for more units than the batch still had reserved",
		},
	)

	StockRecomputedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_product_stock_recomputed_total",
			Help: "Cached activity product stock values that changed on recomputation",
		},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Middleware records request count and latency labelled by the matched chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := strconv.Itoa(ww.Status())
		RequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		RequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }
