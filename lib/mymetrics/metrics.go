package mymetrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stripeshop_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stripeshop_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stripeshop_webhook_events_total",
			Help: "Stripe webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	refundOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stripeshop_refund_operations_total",
			Help: "Refund requests by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	rateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stripeshop_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"route"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records count and duration per route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}
		status := strconv.Itoa(recorder.status)

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

func RecordWebhookEvent(eventType string, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func RecordRefund(kind string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	refundOperations.WithLabelValues(kind, status).Inc()
}

func RecordRateLimited(route string) {
	rateLimited.WithLabelValues(route).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
