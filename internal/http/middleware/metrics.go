package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests that matched no route, so scans for random
// paths cannot grow label cardinality.
const unmatchedRoute = "unmatched"

// HTTP collectors. Labels use the route pattern (c.FullPath()), never the raw
// URL, because lookups carry emails and chat ids in the query string.
var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "messenger",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "messenger",
		Subsystem: "http",
		Name:      "requests_inflight",
		Help:      "Requests currently being served.",
	})

	// Attachments make request bodies range up to MAX_UPLOAD_BYTES.
	httpRequestBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "messenger",
		Subsystem: "http",
		Name:      "request_size_bytes",
		Help:      "Declared request body size.",
		Buckets:   prometheus.ExponentialBuckets(128, 4, 10), // 128B..32MiB
	}, []string{"method", "route"})

	httpResponseBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "messenger",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "Response body size.",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 9), // 64B..4MiB
	}, []string{"method", "route"})

	idempotentReplays = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Subsystem: "http",
		Name:      "idempotent_replays_total",
		Help:      "Write requests answered from a stored idempotency record.",
	}, []string{"route"})

	rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(
		httpRequests,
		httpDuration,
		httpInflight,
		httpRequestBytes,
		httpResponseBytes,
		idempotentReplays,
		rateLimited,
	)
}

// Metrics records request count, latency, in-flight gauge and body sizes.
// Mount it before the handlers and expose promhttp.Handler() on /metrics.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method

		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if n := c.Request.ContentLength; n >= 0 {
			httpRequestBytes.WithLabelValues(method, route).Observe(float64(n))
		}
		if n := c.Writer.Size(); n >= 0 {
			httpResponseBytes.WithLabelValues(method, route).Observe(float64(n))
		}
	}
}
