package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "endpoint_responses_total",
		Help: "The total number of endpoint responses",
	}, []string{"endpoint", "status_code"})

	// Advisor Metrics
	AdvisorQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_queries_total",
		Help: "Total number of advisor queries by type and outcome",
	}, []string{"type", "outcome"})

	AdvisorQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "advisor_query_duration_seconds",
		Help:    "Duration of advisor queries in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
	}, []string{"type"})

	ZeroOccupancyResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "advisor_zero_occupancy_results_total",
		Help: "Total number of launch configurations that cannot run a single block",
	})

	SweepCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "advisor_sweep_candidates",
		Help:    "Number of block sizes evaluated per sweep",
		Buckets: prometheus.LinearBuckets(4, 4, 8),
	})

	RecommendedBlockSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "advisor_recommended_block_size",
		Help: "Block size most recently recommended for a device",
	}, []string{"device"})
)
