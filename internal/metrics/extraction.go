package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "docextract"

// Extraction Prometheus metrics.
var (
	ExtractionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Total number of model call attempts",
		},
		[]string{"provider", "model", "status"},
	)

	ExtractionRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_duration_seconds",
			Help:      "Model call duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"provider", "model"},
	)

	ExtractionTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_total",
			Help:      "Total model tokens consumed",
		},
		[]string{"provider", "model", "type"}, // "input" / "output"
	)

	ExtractionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_errors_total",
			Help:      "Total model call errors",
		},
		[]string{"provider", "model", "error_type"},
	)

	ExtractionRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_retries_total",
			Help:      "Retries scheduled after transient model failures",
		},
		[]string{"provider"},
	)

	BudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_tokens_remaining",
			Help:      "Remaining token budget",
		},
		[]string{"provider", "period"},
	)

	ResultCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_total",
			Help:      "Extraction result cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	PromptCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_cache_total",
			Help:      "Prompt template cache hits and misses",
		},
		[]string{"result"},
	)

	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome (success or error kind)",
		},
		[]string{"outcome"},
	)

	DocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Successfully extracted documents by detected type",
		},
		[]string{"detected_type"},
	)
)

var extractionMetricsRegistered bool

// RegisterExtractionMetrics registers Prometheus extraction metrics. Must be called once from main.
func RegisterExtractionMetrics() {
	if extractionMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		ExtractionRequestsTotal,
		ExtractionRequestDuration,
		ExtractionTokensTotal,
		ExtractionErrorsTotal,
		ExtractionRetriesTotal,
		BudgetTokensRemaining,
		ResultCacheTotal,
		PromptCacheTotal,
		PipelineRunsTotal,
		DocumentsTotal,
	)
	extractionMetricsRegistered = true
}
