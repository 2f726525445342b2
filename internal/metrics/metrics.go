// Package metrics provides Prometheus instrumentation for the honeypot.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "honeypot"

var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status class.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route pattern.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ActiveSessions tracks sessions currently held in memory.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Number of conversations currently held in the session store.",
	})

	SessionsEvictedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_evicted_total",
		Help:      "Sessions removed by the LRU cap or idle TTL.",
	})

	// MessagesTotal counts aggregated messages by sender role.
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages folded into sessions, by sender role.",
		},
		[]string{"role"},
	)

	ScamsConfirmedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scams_confirmed_total",
		Help:      "Sessions newly marked as scams.",
	})

	// ScamsClassifiedTotal counts first classifications by category.
	ScamsClassifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scams_classified_total",
			Help:      "Sessions assigned a scam category, by category.",
		},
		[]string{"category"},
	)

	// EvidenceItemsTotal counts newly extracted distinct evidence items by category.
	EvidenceItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evidence_items_total",
			Help:      "Distinct evidence items added to sessions, by category.",
		},
		[]string{"category"},
	)

	// ReportsTotal counts report submissions by outcome (queued, dropped).
	ReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Reports handed to the callback dispatcher, by outcome.",
		},
		[]string{"outcome"},
	)

	// CallbackDeliveriesTotal counts finished deliveries by result.
	CallbackDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_deliveries_total",
			Help:      "Evaluator callback deliveries by result.",
		},
		[]string{"result"},
	)

	// ReplyGenerationsTotal counts generated replies by source.
	ReplyGenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_generations_total",
			Help:      "Replies produced, by generator.",
		},
		[]string{"source"},
	)

	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_websocket_clients",
		Help:      "Number of connected event stream clients.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveSessions,
		SessionsEvictedTotal,
		MessagesTotal,
		ScamsConfirmedTotal,
		ScamsClassifiedTotal,
		EvidenceItemsTotal,
		ReportsTotal,
		CallbackDeliveriesTotal,
		ReplyGenerationsTotal,
		ActiveWebSocketClients,
	)
}

// Middleware records request counts and latency keyed by chi route pattern
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// route pattern, not raw path, to keep label cardinality bounded
		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, statusBucket(status)).Inc()
	})
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusBucket(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
