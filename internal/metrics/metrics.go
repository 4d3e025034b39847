package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// WebSocket metrics
	WSConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_ws_connections",
			Help: "Live websocket connections",
		},
		[]string{"kind"}, // "chat" or "notifications"
	)

	WSRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_ws_rejected_total",
			Help: "Websocket handshakes rejected before upgrade",
		},
		[]string{"reason"},
	)

	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_frames_received_total",
			Help: "Inbound chat frames by kind",
		},
		[]string{"kind"},
	)

	// Bus metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_bus_events_published_total",
			Help: "Events published to the group bus",
		},
		[]string{"type"},
	)

	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_bus_events_delivered_total",
			Help: "Events enqueued to subscribers",
		},
		[]string{"type"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_bus_events_dropped_total",
			Help: "Events dropped because a subscriber queue was full",
		},
		[]string{"type"},
	)

	BusGroups = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_bus_groups",
			Help: "Groups with at least one local subscriber",
		},
	)

	// gRPC metrics
	GRPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_grpc_requests_total",
			Help: "Unary gRPC calls by outcome",
		},
		[]string{"service", "method", "code"},
	)

	// Presence metrics
	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_presence_transitions_total",
			Help: "Presence flips persisted",
		},
		[]string{"state"}, // "online" or "offline"
	)
)

// HTTP — middleware, считающий запросы по шаблону маршрута chi.
func HTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
