package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crosslink_generation_duration_seconds",
			Help:    "Suggestion generation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	GenerationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosslink_generation_total",
			Help: "Total suggestion generation runs",
		},
		[]string{"status"},
	)

	SuggestionsPerRun = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crosslink_suggestions_per_run",
			Help:    "Number of suggestions produced per generation run",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10, 15},
		},
	)

	RelevanceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crosslink_relevance_score",
			Help:    "Relevance scores of surfaced suggestions",
			Buckets: []float64{50, 60, 70, 80, 90, 100},
		},
	)

	PlacementFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crosslink_placement_failures_total",
			Help: "Candidates dropped because no insertion point was found",
		},
	)

	EmbeddingCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosslink_embedding_cache_hits_total",
			Help: "Embedding cache hits by tier",
		},
		[]string{"tier"},
	)

	EmbeddingCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crosslink_embedding_cache_misses_total",
			Help: "Embeddings generated because no cache tier had them",
		},
	)

	SuggestionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosslink_suggestion_transitions_total",
			Help: "Suggestion state transitions applied",
		},
		[]string{"transition"},
	)

	OrphanedArticles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crosslink_orphaned_articles",
			Help: "Articles with zero outbound internal links",
		},
	)

	ArticlesIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crosslink_articles_ingested_total",
			Help: "Articles published into the corpus",
		},
	)
)

func Init() {
	prometheus.MustRegister(GenerationDuration)
	prometheus.MustRegister(GenerationTotal)
	prometheus.MustRegister(SuggestionsPerRun)
	prometheus.MustRegister(RelevanceScore)
	prometheus.MustRegister(PlacementFailures)
	prometheus.MustRegister(EmbeddingCacheHits)
	prometheus.MustRegister(EmbeddingCacheMisses)
	prometheus.MustRegister(SuggestionTransitions)
	prometheus.MustRegister(OrphanedArticles)
	prometheus.MustRegister(ArticlesIngested)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
