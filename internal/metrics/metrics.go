// Package metrics exposes Prometheus collectors for crawl and download runs.
//
// Collectors are registered on an injected registry so tests and the CLI
// never share global state. Every method is safe on a nil *Metrics, which
// is how components run with metrics disabled.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage labels for ActiveTasks.
const (
	StageCrawl    = "crawl"
	StageDownload = "download"
)

// Metrics holds the collectors of one run.
type Metrics struct {
	requests        *prometheus.CounterVec
	retries         prometheus.Counter
	fetchFailures   prometheus.Counter
	bytesDownloaded prometheus.Counter
	listings        prometheus.Counter
	artifacts       prometheus.Counter
	packages        *prometheus.CounterVec
	cacheHits       prometheus.Counter
	subprocesses    *prometheus.CounterVec
	activeTasks     *prometheus.GaugeVec
	rateLimitWaits  prometheus.Histogram
}

// New registers the collectors on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "debscraper_http_requests_total",
			Help: "HTTP responses received, labeled by status code.",
		}, []string{"code"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "debscraper_fetch_retries_total",
			Help: "Fetch attempts repeated after a transport failure.",
		}),
		fetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "debscraper_fetch_failures_total",
			Help: "Fetches that exhausted every retry.",
		}),
		bytesDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "debscraper_download_bytes_total",
			Help: "Bytes of package archives written to scratch files.",
		}),
		listings: factory.NewCounter(prometheus.CounterOpts{
			Name: "debscraper_listings_discovered_total",
			Help: "Directory listings queued for crawling.",
		}),
		artifacts: factory.NewCounter(prometheus.CounterOpts{
			Name: "debscraper_artifacts_discovered_total",
			Help: "Package archive URLs discovered by the crawl.",
		}),
		packages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "debscraper_packages_total",
			Help: "Packages processed by the download pipeline, labeled by status.",
		}, []string{"status"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "debscraper_cache_hits_total",
			Help: "Artifact URLs skipped because a cache marker existed.",
		}),
		subprocesses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "debscraper_subprocess_runs_total",
			Help: "External tool invocations, labeled by tool and result.",
		}, []string{"tool", "result"}),
		activeTasks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "debscraper_active_tasks",
			Help: "Tasks currently holding a pool slot, labeled by stage.",
		}, []string{"stage"}),
		rateLimitWaits: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "debscraper_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the per-host rate limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),
	}
}

// Handler returns an http.Handler that serves the metrics in g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveResponse counts one HTTP response.
func (m *Metrics) ObserveResponse(code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ObserveRetry counts one repeated fetch attempt.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// ObserveFetchFailure counts one fetch that ran out of retries.
func (m *Metrics) ObserveFetchFailure() {
	if m == nil {
		return
	}
	m.fetchFailures.Inc()
}

// ObserveBytes adds n downloaded bytes.
func (m *Metrics) ObserveBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesDownloaded.Add(float64(n))
}

// ObserveDiscovered counts links produced by one classified page.
func (m *Metrics) ObserveDiscovered(listings, artifacts int) {
	if m == nil {
		return
	}
	m.listings.Add(float64(listings))
	m.artifacts.Add(float64(artifacts))
}

// ObservePackage counts one package outcome.
func (m *Metrics) ObservePackage(status string) {
	if m == nil {
		return
	}
	m.packages.WithLabelValues(status).Inc()
}

// ObserveCacheHit counts one URL skipped because of the cache.
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// ObserveSubprocess counts one external tool run.
func (m *Metrics) ObserveSubprocess(tool string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.subprocesses.WithLabelValues(tool, result).Inc()
}

// TaskStarted increments the active task gauge for stage.
func (m *Metrics) TaskStarted(stage string) {
	if m == nil {
		return
	}
	m.activeTasks.WithLabelValues(stage).Inc()
}

// TaskFinished decrements the active task gauge for stage.
func (m *Metrics) TaskFinished(stage string) {
	if m == nil {
		return
	}
	m.activeTasks.WithLabelValues(stage).Dec()
}

// ObserveRateLimitWait records seconds spent in the rate limiter.
func (m *Metrics) ObserveRateLimitWait(seconds float64) {
	if m == nil {
		return
	}
	m.rateLimitWaits.Observe(seconds)
}
