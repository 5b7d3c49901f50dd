package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// WSConnections tracks currently open websocket sessions.
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "channels_ws_connections",
		Help: "Current number of active websocket sessions",
	})
	// MessagesTotal counts accepted message creations.
	MessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "channels_messages_total",
		Help: "Total number of messages accepted by the lifecycle engine",
	})
	// EventsDropped counts events dropped because a consumer was slow.
	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "channels_ws_events_dropped_total",
		Help: "Total number of outbound events dropped for slow consumers",
	})
	// HTTPRequestsTotal counts REST requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channels_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	// HTTPRequestDuration observes REST request latency.
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "channels_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(WSConnections, MessagesTotal, EventsDropped, HTTPRequestsTotal, HTTPRequestDuration)
}

// GinMiddleware records request counts and latency for Prometheus scraping.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			// Unmatched routes share one label to keep cardinality bounded.
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HTTPRequestsTotal.With(labels).Inc()
		HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
