// Package metrics exposes Prometheus collectors for the HTTP surface, the
// realtime hub, the chat matcher and therapy sessions.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "haven_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "haven_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	wsConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "haven_ws_connections",
			Help: "Number of open websocket connections",
		},
	)

	wsEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_ws_events_total",
			Help: "Realtime events received from clients",
		},
		[]string{"type"},
	)

	wsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haven_ws_dropped_total",
			Help: "Outbound events dropped because a client buffer was full",
		},
	)

	chatMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_chat_messages_total",
			Help: "Chat messages stored",
		},
		[]string{"flagged"},
	)

	chatGroupsFormed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haven_chat_groups_formed_total",
			Help: "Chat groups created by the matcher",
		},
	)

	chatBansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haven_chat_bans_total",
			Help: "Chat sessions banned by the moderation ledger",
		},
	)

	chatWaitTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haven_chat_wait_timeouts_total",
			Help: "Waiting chat sessions dropped after the wait timeout",
		},
	)

	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_rate_limited_total",
			Help: "Requests or events rejected by a rate limiter",
		},
		[]string{"scope"},
	)

	therapyTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_therapy_transitions_total",
			Help: "Therapy session state transitions",
		},
		[]string{"status"},
	)

	brokerPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haven_broker_publish_errors_total",
			Help: "Deliveries that could not be published to the broker",
		},
	)
)

// Handler serves /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func WSConnected()    { wsConnections.Inc() }
func WSDisconnected() { wsConnections.Dec() }

func RecordEvent(eventType string) { wsEventsTotal.WithLabelValues(eventType).Inc() }
func RecordDropped()              { wsDroppedTotal.Inc() }

func RecordChatMessage(flagged bool) {
	chatMessagesTotal.WithLabelValues(strconv.FormatBool(flagged)).Inc()
}

func RecordGroupFormed() { chatGroupsFormed.Inc() }
func RecordBan()         { chatBansTotal.Inc() }

func RecordWaitTimeouts(n int) { chatWaitTimeouts.Add(float64(n)) }

func RecordRateLimited(scope string) { rateLimitedTotal.WithLabelValues(scope).Inc() }

func RecordTherapyTransition(status string) { therapyTransitions.WithLabelValues(status).Inc() }

func RecordPublishError() { brokerPublishErrors.Inc() }
