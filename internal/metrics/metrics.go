// Package metrics exposes Prometheus collectors for the extractor.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_fetch_pages_total",
			Help: "Total number of static pages fetched, labeled by site and status class.",
		},
		[]string{"site", "status"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_fetch_bytes_total",
			Help: "Total number of bytes fetched, labeled by site.",
		},
		[]string{"site"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_runs_total",
			Help: "Pipeline runs by terminal tier and success.",
		},
		[]string{"tier", "success"},
	)

	runDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extractor_run_duration_seconds",
			Help:    "Histogram of per-URL pipeline durations, labeled by terminal tier.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"tier"},
	)

	productsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_products_total",
			Help: "Products found, saved and rejected at persistence.",
		},
		[]string{"stage"},
	)

	gateWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extractor_gate_wait_seconds",
			Help:    "Time spent waiting on an admission gate.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"gate"},
	)

	gateInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "extractor_gate_in_use",
			Help: "Slots currently held per admission gate.",
		},
		[]string{"gate"},
	)

	renderFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "extractor_render_fallbacks_total",
			Help: "Renders retried without the wait selector after a selector timeout.",
		},
	)

	apiFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_api_fetch_total",
			Help: "Discovered API endpoint probes, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	storeWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_store_writes_total",
			Help: "Store writes, labeled by table and outcome.",
		},
		[]string{"table", "outcome"},
	)

	queueItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_queue_items_total",
			Help: "Work items moved by the coordinator, labeled by transition.",
		},
		[]string{"transition"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extractor_rate_limit_delay_seconds",
			Help:    "Histogram of per-domain pacing waits.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one static page fetch.
func ObserveFetch(site string, statusCode int, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	fetchPagesTotal.WithLabelValues(sanitizedSite, statusClass(statusCode)).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveRun records a terminal pipeline outcome.
func ObserveRun(tier string, success bool, elapsed time.Duration) {
	runsTotal.WithLabelValues(tier, strconv.FormatBool(success)).Inc()
	runDurationSeconds.WithLabelValues(tier).Observe(elapsed.Seconds())
}

// ObserveProducts adds per-URL product counts.
func ObserveProducts(found, saved, rejected int) {
	productsTotal.WithLabelValues("found").Add(float64(found))
	productsTotal.WithLabelValues("saved").Add(float64(saved))
	productsTotal.WithLabelValues("rejected").Add(float64(rejected))
}

// ObserveGateWait records how long an admission gate took to grant a slot.
func ObserveGateWait(gate string, d time.Duration) {
	gateWaitSeconds.WithLabelValues(gate).Observe(d.Seconds())
}

// IncGate marks one slot of gate as held.
func IncGate(gate string) {
	gateInUse.WithLabelValues(gate).Inc()
}

// DecGate marks one slot of gate as released.
func DecGate(gate string) {
	gateInUse.WithLabelValues(gate).Dec()
}

// ObserveRenderFallback counts a render retried without its wait condition.
func ObserveRenderFallback() {
	renderFallbacksTotal.Inc()
}

// ObserveAPIFetch counts one endpoint probe outcome.
func ObserveAPIFetch(outcome string) {
	apiFetchTotal.WithLabelValues(outcome).Inc()
}

// ObserveStoreWrite counts one store write outcome.
func ObserveStoreWrite(table, outcome string) {
	storeWritesTotal.WithLabelValues(table, outcome).Inc()
}

// ObserveQueue adds n items to a coordinator transition counter.
func ObserveQueue(transition string, n int) {
	if n <= 0 {
		return
	}
	queueItemsTotal.WithLabelValues(transition).Add(float64(n))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusClass(code int) string {
	if code <= 0 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}
