package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics holds the prometheus instruments shared across the engine:
// batch pipeline outcomes, request-path latency, provider scan errors, and
// the gauges tracking the published models.
type EngineMetrics struct {
	PipelineRuns     *prometheus.CounterVec
	PipelineDuration prometheus.Histogram

	RequestLatency *prometheus.HistogramVec
	CacheHits      *prometheus.CounterVec

	ScanErrors *prometheus.CounterVec

	RankIterations prometheus.Gauge
	GraphNodes     prometheus.Gauge
	GraphEdges     prometheus.Gauge
	ModelActors    prometheus.Gauge
	ModelItems     prometheus.Gauge

	DiscoveryCoverage  prometheus.Gauge
	DiscoveryDiversity prometheus.Gauge
}

// NewEngineMetrics registers the engine instruments against the given
// registerer. Tests pass a private registry to avoid collisions.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	factory := promauto.With(reg)

	return &EngineMetrics{
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_pipeline_runs_total",
			Help: "Batch recompute outcomes by result",
		}, []string{"result"}),

		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "batch_pipeline_duration_seconds",
			Help:    "Wall-clock duration of completed batch recomputes",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),

		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recommendation_request_duration_seconds",
			Help:    "Recommendation request latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"endpoint"}),

		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_cache_requests_total",
			Help: "Recommendation cache lookups by outcome",
		}, []string{"outcome"}),

		ScanErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_scan_errors_total",
			Help: "Rows skipped while scanning provider result sets",
		}, []string{"source"}),

		RankIterations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "influence_rank_iterations",
			Help: "Iterations used by the last rank propagation",
		}),

		GraphNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "influence_graph_nodes",
			Help: "Node count of the published influence graph",
		}),

		GraphEdges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "influence_graph_edges",
			Help: "Edge count of the published influence graph",
		}),

		ModelActors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "latent_model_actors",
			Help: "Actor count of the published latent model",
		}),

		ModelItems: factory.NewGauge(prometheus.GaugeOpts{
			Name: "latent_model_items",
			Help: "Item count of the published latent model",
		}),

		DiscoveryCoverage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "discovery_catalog_coverage",
			Help: "Fraction of trained items ever surfaced by discovery",
		}),

		DiscoveryDiversity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "discovery_diversity_index",
			Help: "One minus the Gini concentration of discovery exposure",
		}),
	}
}

// ObservePipeline records one batch run outcome.
func (m *EngineMetrics) ObservePipeline(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(result).Inc()
	if result == "completed" {
		m.PipelineDuration.Observe(duration.Seconds())
	}
}
