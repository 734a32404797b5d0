package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intelliquery_query_duration_seconds",
			Help:    "Question answering duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"intent"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intelliquery_query_total",
			Help: "Total number of questions processed",
		},
		[]string{"intent", "status"},
	)

	BoardRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intelliquery_board_request_duration_seconds",
			Help:    "Board API request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation", "status"},
	)

	BoardItemsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intelliquery_board_items_fetched_total",
			Help: "Total board items fetched",
		},
		[]string{"board"},
	)

	DatasetLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intelliquery_dataset_loads_total",
			Help: "Dataset load cycles by outcome",
		},
		[]string{"status", "trigger"},
	)

	DatasetRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "intelliquery_dataset_rows",
			Help: "Rows in the current dataset snapshot",
		},
		[]string{"table"},
	)

	DataQualityIssues = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "intelliquery_data_quality_issues",
			Help: "Data quality issues found by the last load",
		},
		[]string{"severity"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intelliquery_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "intelliquery_llm_fallback_total",
			Help: "Questions classified by the keyword fallback instead of the model",
		},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "intelliquery_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intelliquery_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intelliquery_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QueryDuration,
			QueryTotal,
			BoardRequestDuration,
			BoardItemsFetched,
			DatasetLoads,
			DatasetRows,
			DataQualityIssues,
			LLMTokensUsed,
			LLMFallbacks,
			CircuitState,
			CacheHits,
			CacheMisses,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
