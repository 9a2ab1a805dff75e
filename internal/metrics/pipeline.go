package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	PipelineDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_decisions_total",
			Help:      "Answer strategy selected per request",
		},
		[]string{"decision"},
	)

	PipelineTopScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_top_score",
			Help:      "Highest similarity score of the gating search",
			Buckets:   []float64{0.1, 0.3, 0.5, 0.7, 0.8, 0.85, 0.87, 0.9, 0.95, 1},
		},
	)

	PipelineFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_failures_total",
			Help:      "Pipeline failures by stage",
		},
		[]string{"stage"}, // "filter" / "retrieval" / "generation" / "sink" / "panic"
	)

	StreamFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Frames written to client streams by kind",
		},
		[]string{"kind"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PipelineDecisionsTotal)
	prometheus.MustRegister(PipelineTopScore)
	prometheus.MustRegister(PipelineFailuresTotal)
	prometheus.MustRegister(StreamFramesTotal)
	pipelineMetricsRegistered = true
}
