// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HookFiringsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cds_hook_firings_total",
			Help: "Total number of hook firings by outcome",
		},
		[]string{"hook_type", "status"},
	)

	HookFiringDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "cds_hook_firing_duration_seconds",
			Help: "Duration of a full hook firing fan-out in seconds",
		},
		[]string{"hook_type"},
	)

	ServiceCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cds_service_calls_total",
			Help: "Total number of per-service hook executions by status",
		},
		[]string{"service_id", "status"},
	)

	DiscoveryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cds_discovery_total",
			Help: "Total number of discovery fetches by status",
		},
		[]string{"status"},
	)

	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cds_cache_hits_total",
			Help: "Total number of cache hits by cache name",
		},
		[]string{"cache"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cds_cache_misses_total",
			Help: "Total number of cache misses by cache name",
		},
		[]string{"cache"},
	)

	CardsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cds_cards_returned",
			Help:    "Number of cards aggregated per hook firing",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		},
		[]string{"hook_type"},
	)

	FeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cds_feedback_total",
			Help: "Total number of feedback submissions by outcome and status",
		},
		[]string{"outcome", "status"},
	)

	UnmappedEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cds_unmapped_events_total",
			Help: "Total number of workflow events with no hook type mapping",
		},
	)
)
