// Package metrics exposes Prometheus collectors for the jobradar service.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchTotal           *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec
	browserFallbackTotal prometheus.Counter
	scoreTotal           *prometheus.CounterVec
	postingsTotal        *prometheus.CounterVec
	runsTotal            *prometheus.CounterVec
	activeFetchers       prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_fetch_total",
				Help: "Text extraction attempts, labeled by site, method and terminal status.",
			},
			[]string{"site", "method", "status"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobradar_fetch_duration_seconds",
				Help:    "Histogram of per-URL extraction latencies, labeled by method.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 45, 90},
			},
			[]string{"method"},
		)

		browserFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "jobradar_browser_fallback_total",
				Help: "URLs routed to the browser after the HTTP attempt failed.",
			},
		)

		scoreTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_score_total",
				Help: "LLM scoring outcomes, labeled by decision.",
			},
			[]string{"decision"},
		)

		postingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_postings_total",
				Help: "Postings seen per source, labeled by novelty.",
			},
			[]string{"source", "novelty"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_runs_total",
				Help: "Pipeline runs, labeled by phase and result.",
			},
			[]string{"phase", "result"},
		)

		activeFetchers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobradar_active_fetchers",
				Help: "Workers currently fetching a URL.",
			},
		)
	})
}

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

// ObserveFetch records one terminal extraction attempt.
func ObserveFetch(site, method, status string, dur time.Duration) {
	fetchTotal.WithLabelValues(SanitizeSite(site), method, status).Inc()
	if dur > 0 {
		fetchDurationSeconds.WithLabelValues(method).Observe(dur.Seconds())
	}
}

// ObserveBrowserFallback counts an HTTP-to-browser handoff.
func ObserveBrowserFallback() {
	browserFallbackTotal.Inc()
}

// ObserveScore counts a scoring outcome by decision.
func ObserveScore(decision string) {
	scoreTotal.WithLabelValues(decision).Inc()
}

// ObservePostings counts sighted postings for a source.
func ObservePostings(source string, fresh, seen int) {
	if fresh > 0 {
		postingsTotal.WithLabelValues(source, "new").Add(float64(fresh))
	}
	if seen > 0 {
		postingsTotal.WithLabelValues(source, "seen").Add(float64(seen))
	}
}

// ObserveRun counts a completed pipeline phase.
func ObserveRun(phase, result string) {
	runsTotal.WithLabelValues(phase, result).Inc()
}

// IncActiveFetchers increments the active fetcher gauge.
func IncActiveFetchers() {
	activeFetchers.Inc()
}

// DecActiveFetchers decrements the active fetcher gauge.
func DecActiveFetchers() {
	activeFetchers.Dec()
}
