package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Retrieval metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_embedding_requests_total",
			Help: "Total number of embedding provider calls",
		},
		[]string{"model", "status"},
	)

	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_embedding_duration_seconds",
			Help:    "Embedding provider call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model", "status"},
	)

	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_vector_searches_total",
			Help: "Total number of vector index queries",
		},
		[]string{"status"},
	)

	VectorSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_vector_search_duration_seconds",
			Help:    "Vector index query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// Generation metrics
	GenerationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_generation_requests_total",
			Help: "Total number of language model generation calls",
		},
		[]string{"model", "status"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_generation_duration_seconds",
			Help:    "Language model call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	GenerationTokensUsed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_generation_tokens_used",
			Help:    "Tokens consumed per generation call",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000},
		},
	)

	// Cache metrics
	ResponseCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_response_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	ResponseCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_response_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// Rate limiting
	RateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_rate_limit_denials_total",
			Help: "Total number of locally rate-limited chat requests",
		},
		[]string{"caller"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_sessions_created_total",
			Help: "Total number of chat sessions created",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_session_cache_hits_total",
			Help: "Session lookups served from the local cache",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_session_cache_misses_total",
			Help: "Session lookups that fell through to Redis",
		},
	)

	SessionCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_session_cache_size",
			Help: "Number of sessions held in the local cache",
		},
	)

	// Ingestion metrics
	DocumentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_documents_ingested_total",
			Help: "Total number of documents processed by ingestion",
		},
		[]string{"status"},
	)

	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_chat_requests_total",
			Help: "Total number of chat requests handled",
		},
		[]string{"outcome"},
	)
)

// RecordEmbedding records one embedding provider call
func RecordEmbedding(model, status string, seconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	EmbeddingDuration.WithLabelValues(model, status).Observe(seconds)
}

// RecordVectorSearch records one vector index query
func RecordVectorSearch(status string, seconds float64) {
	VectorSearches.WithLabelValues(status).Inc()
	VectorSearchDuration.WithLabelValues(status).Observe(seconds)
}

// RecordGeneration records one language model call
func RecordGeneration(model, status string, seconds float64) {
	GenerationRequests.WithLabelValues(model, status).Inc()
	if status == "ok" {
		GenerationDuration.WithLabelValues(model).Observe(seconds)
	}
}
