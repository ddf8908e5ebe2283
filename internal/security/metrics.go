package security

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// StoreLatency is used by the store metrics wrapper to record adapter
	// operation latency per backend region.
	StoreLatency *prometheus.HistogramVec

	UnreadCacheHitsTotal   prometheus.Counter
	UnreadCacheMissesTotal prometheus.Counter

	// ContactGateBypassesTotal counts direct-conversation sends that passed
	// only because the workspace override policy is enabled.
	ContactGateBypassesTotal prometheus.Counter

	// DBPoolOpenConnections tracks open relational connections per region.
	DBPoolOpenConnections *prometheus.GaugeVec
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Must be called before starting the HTTP server or any store initialization
// that records metrics. Safe to call multiple times; only the first call registers.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_service_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_service_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_service_store_latency_seconds",
			Help:    "Backend adapter operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"region", "operation"},
	)

	UnreadCacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "chat_service_unread_cache_hits_total",
		Help: "Total unread-count cache hits",
	})

	UnreadCacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "chat_service_unread_cache_misses_total",
		Help: "Total unread-count cache misses",
	})

	ContactGateBypassesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "chat_service_contact_gate_bypasses_total",
		Help: "Direct sends permitted only by the workspace override policy",
	})

	DBPoolOpenConnections = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_service_db_pool_open_connections",
			Help: "Number of open database connections",
		},
		[]string{"region"},
	)
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}
