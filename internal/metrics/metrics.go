// Package metrics exposes Prometheus instruments for the rule workbench.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ruler"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

// Estimation metrics
var (
	EstimatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimates_total",
			Help:      "Total number of impact estimates computed, by confidence",
		},
		[]string{"confidence"},
	)

	EstimateErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimate_errors_total",
			Help:      "Total number of failed impact estimates, by error code",
		},
		[]string{"code"},
	)

	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Total number of advisory verdicts issued",
		},
		[]string{"verdict"},
	)

	EstimateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "estimate_duration_seconds",
			Help:      "Impact estimate latency distribution",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		},
	)
)

// Cache and catalog metrics
var (
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimate_cache_requests_total",
			Help:      "Estimate cache lookups by result",
		},
		[]string{"result"}, // hit, miss
	)

	CatalogRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_rules",
			Help:      "Number of rules held in the catalog",
		},
	)

	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Bus events handled by the worker",
		},
		[]string{"topic", "status"},
	)

	BusMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_total",
			Help:      "Event bus traffic by topic and result",
		},
		[]string{"topic", "result"}, // published, dropped, failed
	)
)
