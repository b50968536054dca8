package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	writeTotal    *prometheus.CounterVec
	writeDuration prometheus.Histogram

	searchTotal    *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec

	recallDuration prometheus.Histogram
	recallTokens   prometheus.Histogram

	consolidationDuration prometheus.Histogram
	consolidationTotal    *prometheus.CounterVec

	memoriesTotal  prometheus.Gauge
	archivedTotal  prometheus.Gauge
	activeSessions prometheus.Gauge

	embeddingDuration prometheus.Histogram
	rerankDuration    prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			writeTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "engram_write_total",
					Help: "Total write-path outcomes by status.",
				},
				[]string{"status"},
			),
			writeDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "engram_write_duration_seconds",
					Help:    "Write-path duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			searchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "engram_search_total",
					Help: "Total searches by mode.",
				},
				[]string{"mode"},
			),
			searchDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "engram_search_duration_seconds",
					Help:    "Search duration in seconds by mode.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"mode"},
			),
			recallDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "engram_recall_duration_seconds",
					Help:    "Focus-of-attention assembly duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			recallTokens: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "engram_recall_tokens",
					Help:    "Estimated tokens packed per recall.",
					Buckets: prometheus.ExponentialBuckets(64, 2, 10),
				},
			),
			consolidationDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "engram_consolidation_duration_seconds",
					Help:    "Sleep-cycle duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			consolidationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "engram_consolidation_ops_total",
					Help: "Total consolidation effects by step.",
				},
				[]string{"step"},
			),
			memoriesTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "engram_memories_total",
					Help: "Total non-archived memories.",
				},
			),
			archivedTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "engram_memories_archived_total",
					Help: "Total archived memories.",
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "engram_active_sessions",
					Help: "Sessions started and not yet ended.",
				},
			),
			embeddingDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "engram_embedding_duration_seconds",
					Help:    "Encoder inference duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			rerankDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "engram_rerank_duration_seconds",
					Help:    "Cross-encoder inference duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.writeTotal,
			m.writeDuration,
			m.searchTotal,
			m.searchDuration,
			m.recallDuration,
			m.recallTokens,
			m.consolidationDuration,
			m.consolidationTotal,
			m.memoriesTotal,
			m.archivedTotal,
			m.activeSessions,
			m.embeddingDuration,
			m.rerankDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordWrite(status string, duration time.Duration) {
	m := getMetrics()
	m.writeTotal.WithLabelValues(status).Inc()
	m.writeDuration.Observe(duration.Seconds())
}

func RecordSearch(mode string, duration time.Duration) {
	m := getMetrics()
	m.searchTotal.WithLabelValues(mode).Inc()
	m.searchDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func RecordRecall(duration time.Duration, tokens int) {
	m := getMetrics()
	m.recallDuration.Observe(duration.Seconds())
	m.recallTokens.Observe(float64(tokens))
}

func RecordConsolidation(duration time.Duration) {
	getMetrics().consolidationDuration.Observe(duration.Seconds())
}

func RecordConsolidationStep(step string, count int) {
	getMetrics().consolidationTotal.WithLabelValues(step).Add(float64(count))
}

func SetMemoryCounts(active, archived int) {
	m := getMetrics()
	m.memoriesTotal.Set(float64(active))
	m.archivedTotal.Set(float64(archived))
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordEmbedding(duration time.Duration) {
	getMetrics().embeddingDuration.Observe(duration.Seconds())
}

func RecordRerank(duration time.Duration) {
	getMetrics().rerankDuration.Observe(duration.Seconds())
}
