// Package obsmetrics exposes the Prometheus metrics surface for the search
// service: HTTP ingress, per-upstream-client outcomes, cache hit/miss, and
// orchestration latency.
package obsmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds every registered metric for the service.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec
	upstreamCircuitState    *prometheus.GaugeVec

	searchRequestsTotal   *prometheus.CounterVec
	searchDuration        *prometheus.HistogramVec
	searchResultsReturned *prometheus.HistogramVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	rateLimitRejections *prometheus.CounterVec
	quotaRejections     *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the metrics namespace (default "search_core").
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if namespace == "" {
		namespace = "search_core"
	}

	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request duration", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)

	c.upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "upstream_requests_total", Help: "Total requests per upstream client"},
		[]string{"client", "status"},
	)
	c.upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "upstream_request_duration_seconds", Help: "Upstream client request duration", Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20}},
		[]string{"client"},
	)
	c.upstreamCircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: "upstream_circuit_state", Help: "Circuit breaker state (0=closed,1=open,2=half_open)"},
		[]string{"client"},
	)

	c.searchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "search_requests_total", Help: "Total orchestrated search requests"},
		[]string{"strategy", "status"},
	)
	c.searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "search_duration_seconds", Help: "End-to-end search orchestration duration", Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30}},
		[]string{"strategy"},
	)
	c.searchResultsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "search_results_returned", Help: "Number of results returned per search", Buckets: []float64{0, 1, 5, 10, 25, 50, 100}},
		[]string{"strategy"},
	)

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_hits_total", Help: "Total cache hits"},
		[]string{"tier"},
	)
	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_misses_total", Help: "Total cache misses"},
		[]string{"tier"},
	)

	c.rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejections_total", Help: "Requests rejected by local rate limiting"},
		[]string{"limiter"},
	)
	c.quotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "quota_rejections_total", Help: "Requests rejected by the quota service"},
		[]string{"reason"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest records one HTTP ingress request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordUpstreamRequest records one upstream client call outcome.
func (c *Collector) RecordUpstreamRequest(client, status string, duration time.Duration) {
	c.upstreamRequestsTotal.WithLabelValues(client, status).Inc()
	c.upstreamRequestDuration.WithLabelValues(client).Observe(duration.Seconds())
}

// SetCircuitState records a client's current circuit breaker state.
func (c *Collector) SetCircuitState(client string, state int) {
	c.upstreamCircuitState.WithLabelValues(client).Set(float64(state))
}

// RecordSearch records one completed orchestration.
func (c *Collector) RecordSearch(strategy, status string, duration time.Duration, resultCount int) {
	c.searchRequestsTotal.WithLabelValues(strategy, status).Inc()
	c.searchDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	c.searchResultsReturned.WithLabelValues(strategy).Observe(float64(resultCount))
}

// RecordCacheHit increments the hit counter for tier ("local" or "redis").
func (c *Collector) RecordCacheHit(tier string) { c.cacheHits.WithLabelValues(tier).Inc() }

// RecordCacheMiss increments the miss counter.
func (c *Collector) RecordCacheMiss(tier string) { c.cacheMisses.WithLabelValues(tier).Inc() }

// RecordRateLimitRejection increments the local rate-limit rejection counter.
func (c *Collector) RecordRateLimitRejection(limiter string) {
	c.rateLimitRejections.WithLabelValues(limiter).Inc()
}

// RecordQuotaRejection increments the quota-service rejection counter.
func (c *Collector) RecordQuotaRejection(reason string) {
	c.quotaRejections.WithLabelValues(reason).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
