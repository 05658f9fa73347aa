package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PapersCollected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papermon_papers_collected_total",
			Help: "Total papers fetched from arXiv",
		},
	)

	PapersEnriched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papermon_papers_enriched_total",
			Help: "Total papers successfully enriched",
		},
	)

	EnrichmentFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papermon_enrichment_failures_total",
			Help: "Total per-paper enrichment failures",
		},
	)

	LLMCallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "papermon_llm_call_duration_seconds",
			Help:    "Text generation call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30},
		},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "papermon_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900},
		},
		[]string{"run"},
	)

	RunTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papermon_run_total",
			Help: "Total pipeline runs by outcome",
		},
		[]string{"run", "status"},
	)

	DigestsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papermon_digests_sent_total",
			Help: "Total digest emails sent",
		},
	)
)

func Init() {
	prometheus.MustRegister(PapersCollected)
	prometheus.MustRegister(PapersEnriched)
	prometheus.MustRegister(EnrichmentFailures)
	prometheus.MustRegister(LLMCallDuration)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(RunTotal)
	prometheus.MustRegister(DigestsSent)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
