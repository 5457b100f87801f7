// Package metrics holds the Prometheus instruments for the ingestion engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "jobharvest"

// Metrics groups the counters and histograms updated during a run.
type Metrics struct {
	FetchRequests   *prometheus.CounterVec
	FetchRetries    *prometheus.CounterVec
	ParseFailures   *prometheus.CounterVec
	DroppedPostings *prometheus.CounterVec
	Classified      *prometheus.CounterVec
	SiteRuns        *prometheus.CounterVec
	SiteRunSeconds  *prometheus.HistogramVec
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FetchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "fetcher",
			Name:      "requests_total",
			Help:      "Page fetches by site and final outcome (ok, fatal, exhausted, cancelled).",
		}, []string{"site", "outcome"}),
		FetchRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "fetcher",
			Name:      "retries_total",
			Help:      "Backoff retries by site.",
		}, []string{"site"}),
		ParseFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "adapter",
			Name:      "parse_failures_total",
			Help:      "Pages an adapter could not parse.",
		}, []string{"site"}),
		DroppedPostings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "normalizer",
			Name:      "dropped_total",
			Help:      "Raw postings dropped for missing required fields.",
		}, []string{"site"}),
		Classified: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "reconciler",
			Name:      "postings_total",
			Help:      "Postings by reconciliation outcome.",
		}, []string{"site", "classification"}),
		SiteRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "poller",
			Name:      "site_runs_total",
			Help:      "Finished site runs by status.",
		}, []string{"site", "status"}),
		SiteRunSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "poller",
			Name:      "site_run_duration_seconds",
			Help:      "Wall time of a site run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"site"}),
	}
}

// Discard returns metrics registered on a private registry nobody scrapes.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
