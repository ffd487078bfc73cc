package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "company_radar_llm_calls_total",
			Help: "LLM invocations by template and outcome",
		},
		[]string{"template", "outcome"},
	)

	LLMDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "company_radar_llm_duration_seconds",
			Help:    "LLM invocation latency including retries",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"template"},
	)

	ReportUnits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "company_radar_report_units_total",
			Help: "Report units by kind and outcome (cached, generated, failed, no_data)",
		},
		[]string{"kind", "outcome"},
	)

	ArticlesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "company_radar_articles_fetched_total",
			Help: "Article detail fetches by outcome",
		},
		[]string{"outcome"},
	)

	ArticlesSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "company_radar_articles_saved_total",
			Help: "Article persistence results (inserted, duplicate, skipped)",
		},
		[]string{"result"},
	)

	ChunksUpserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "company_radar_context_chunks_total",
			Help: "Context chunks offered to the vector store (added, skipped)",
		},
		[]string{"result"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "company_radar_cache_lookups_total",
			Help: "Redis cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)
)

var once sync.Once

// Init 注册所有指标到默认 Registry，可重复调用
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			LLMCalls,
			LLMDuration,
			ReportUnits,
			ArticlesFetched,
			ArticlesSaved,
			ChunksUpserted,
			CacheLookups,
		)
	})
}
