package metrics

import "github.com/prometheus/client_golang/prometheus"

// Generation Prometheus metrics.
var (
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Total number of generative model requests",
		},
		[]string{"model", "mode", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_request_duration_seconds",
			Help:      "Generative model request duration in seconds, until the last token",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"model", "mode"},
	)

	GenerationTimeToFirstChunk = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_time_to_first_chunk_seconds",
			Help:      "Time from stream open to the first content chunk",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
		[]string{"model"},
	)

	GenerationChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_chunks_total",
			Help:      "Total number of streamed content chunks",
		},
		[]string{"model"},
	)

	GenerationTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_tokens_total",
			Help:      "Total generation tokens reported by the provider",
		},
		[]string{"model", "type"},
	)
)

var genMetricsRegistered bool

// RegisterGenerationMetrics registers Prometheus generation metrics. Must be called once from main.
func RegisterGenerationMetrics() {
	if genMetricsRegistered {
		return
	}
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	prometheus.MustRegister(GenerationTimeToFirstChunk)
	prometheus.MustRegister(GenerationChunksTotal)
	prometheus.MustRegister(GenerationTokensTotal)
	genMetricsRegistered = true
}
