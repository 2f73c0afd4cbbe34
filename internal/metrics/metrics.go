package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	PipelinesStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_pipelines_started_total",
			Help: "Total number of research pipelines started",
		},
		[]string{"entry"},
	)

	PipelinesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_pipelines_completed_total",
			Help: "Total number of research pipelines finished",
		},
		[]string{"status"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepresearch_pipeline_duration_seconds",
			Help:    "Wall time from start to compiled report",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	ClarificationsRequested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_clarifications_requested_total",
			Help: "Total number of clarification questions surfaced to users",
		},
	)

	// Supervisor metrics
	PlanningPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_planning_passes_total",
			Help: "Total number of supervisor planning passes",
		},
		[]string{"outcome"},
	)

	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_dispatches_total",
			Help: "Total number of worker dispatches",
		},
		[]string{"kind", "outcome"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_dispatch_duration_seconds",
			Help:    "Worker dispatch duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	WorkerRounds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_worker_rounds",
			Help:    "Number of act/observe rounds per worker run",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12},
		},
		[]string{"worker"},
	)

	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_tool_invocations_total",
			Help: "Total number of worker tool invocations",
		},
		[]string{"tool", "status"},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_llm_requests_total",
			Help: "Total number of generation calls",
		},
		[]string{"model", "purpose", "status"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_llm_latency_seconds",
			Help:    "Generation call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"model", "purpose"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_llm_tokens_total",
			Help: "Tokens consumed by generation calls",
		},
		[]string{"model", "direction"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_sessions_created_total",
			Help: "Total number of research sessions created",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_session_cache_hits_total",
			Help: "Session lookups served from the local cache",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_session_cache_misses_total",
			Help: "Session lookups that went to Redis",
		},
	)

	SessionCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deepresearch_session_cache_size",
			Help: "Sessions held in the local cache",
		},
	)

	// Knowledge index metrics
	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_vector_search_total",
			Help: "Total number of vector searches",
		},
		[]string{"collection", "status"},
	)

	VectorSearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_vector_search_latency_seconds",
			Help:    "Vector search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_embedding_requests_total",
			Help: "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_embedding_latency_seconds",
			Help:    "Embedding request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	EmbeddingCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_embedding_cache_hits_total",
			Help: "Embedding cache hits by tier",
		},
		[]string{"tier"},
	)
)

// RecordLLMMetrics records one generation call.
func RecordLLMMetrics(model, purpose, status string, durationSeconds float64, inputTokens, outputTokens int) {
	LLMRequests.WithLabelValues(model, purpose, status).Inc()
	LLMLatency.WithLabelValues(model, purpose).Observe(durationSeconds)
	if inputTokens > 0 {
		LLMTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		LLMTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// RecordDispatch records one worker dispatch outcome.
func RecordDispatch(kind, outcome string, durationSeconds float64) {
	Dispatches.WithLabelValues(kind, outcome).Inc()
	DispatchDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordPipelineCompletion records a pipeline reaching a terminal state.
func RecordPipelineCompletion(status string, durationSeconds float64) {
	PipelinesCompleted.WithLabelValues(status).Inc()
	if durationSeconds > 0 {
		PipelineDuration.Observe(durationSeconds)
	}
}

// RecordVectorSearchMetrics records vector search metrics.
func RecordVectorSearchMetrics(collection, status string, durationSeconds float64) {
	VectorSearches.WithLabelValues(collection, status).Inc()
	VectorSearchLatency.WithLabelValues(collection).Observe(durationSeconds)
}

// RecordEmbeddingMetrics records embedding request metrics.
func RecordEmbeddingMetrics(model, status string, durationSeconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	switch status {
	case "lru_hit":
		EmbeddingCacheHits.WithLabelValues("lru").Inc()
		return
	case "cache_hit":
		EmbeddingCacheHits.WithLabelValues("redis").Inc()
		return
	}
	EmbeddingLatency.WithLabelValues(model).Observe(durationSeconds)
}
