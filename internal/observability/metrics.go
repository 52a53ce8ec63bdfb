package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	searchTotal      *prometheus.CounterVec
	searchDuration   *prometheus.HistogramVec
	searchDegraded   *prometheus.CounterVec
	searchResultSize *prometheus.HistogramVec

	storeTotal    *prometheus.CounterVec
	storeDuration prometheus.Histogram
	deleteTotal   *prometheus.CounterVec
	entriesTotal  prometheus.Gauge

	embeddingTotal    *prometheus.CounterVec
	embeddingDuration prometheus.Histogram
	embeddingCache    *prometheus.CounterVec

	storageRetries  *prometheus.CounterVec
	ingestTotal     *prometheus.CounterVec
	maintenanceRuns *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			searchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_search_total",
					Help: "Total memory searches by mode and status.",
				},
				[]string{"mode", "status"},
			),
			searchDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Memory search duration in seconds by mode.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"mode"},
			),
			searchDegraded: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_search_degraded_total",
					Help: "Hybrid searches answered in degraded mode by reason.",
				},
				[]string{"reason"},
			),
			searchResultSize: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memory_search_results",
					Help:    "Number of results returned per search by mode.",
					Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
				},
				[]string{"mode"},
			),
			storeTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_store_total",
					Help: "Total store_memory calls by status.",
				},
				[]string{"status"},
			),
			storeDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_store_duration_seconds",
					Help:    "Memory store duration in seconds, embedding included.",
					Buckets: prometheus.DefBuckets,
				},
			),
			deleteTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_delete_total",
					Help: "Total delete_memory calls by outcome.",
				},
				[]string{"status"},
			),
			entriesTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_entries_total",
					Help: "Total memories indexed.",
				},
			),
			embeddingTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_embedding_total",
					Help: "Total embedding requests by model and status.",
				},
				[]string{"model", "status"},
			),
			embeddingDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_embedding_duration_seconds",
					Help:    "Embedding provider latency in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			embeddingCache: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_embedding_cache_total",
					Help: "Embedding cache lookups by result.",
				},
				[]string{"result"},
			),
			storageRetries: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_storage_retries_total",
					Help: "Storage operations retried after a transient failure.",
				},
				[]string{"op"},
			),
			ingestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_ingest_total",
					Help: "Spool records processed by status.",
				},
				[]string{"status"},
			),
			maintenanceRuns: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_maintenance_runs_total",
					Help: "Scheduled maintenance runs by status.",
				},
				[]string{"status"},
			),
		}

		prometheus.MustRegister(
			m.searchTotal,
			m.searchDuration,
			m.searchDegraded,
			m.searchResultSize,
			m.storeTotal,
			m.storeDuration,
			m.deleteTotal,
			m.entriesTotal,
			m.embeddingTotal,
			m.embeddingDuration,
			m.embeddingCache,
			m.storageRetries,
			m.ingestTotal,
			m.maintenanceRuns,
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

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordSearch observes one search. Mode is hybrid, fts, vector or recent.
func RecordSearch(mode string, duration time.Duration, results int, success bool) {
	m := getMetrics()
	m.searchTotal.WithLabelValues(mode, status(success)).Inc()
	m.searchDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if success {
		m.searchResultSize.WithLabelValues(mode).Observe(float64(results))
	}
}

func RecordSearchDegraded(reason string) {
	getMetrics().searchDegraded.WithLabelValues(reason).Inc()
}

func RecordStore(duration time.Duration, success bool) {
	m := getMetrics()
	m.storeTotal.WithLabelValues(status(success)).Inc()
	m.storeDuration.Observe(duration.Seconds())
}

// RecordDelete counts a delete. Status is deleted, missing or error.
func RecordDelete(status string) {
	getMetrics().deleteTotal.WithLabelValues(status).Inc()
}

func SetMemoryEntries(total int) {
	getMetrics().entriesTotal.Set(float64(total))
}

func RecordEmbedding(model string, duration time.Duration, success bool) {
	m := getMetrics()
	m.embeddingTotal.WithLabelValues(model, status(success)).Inc()
	m.embeddingDuration.Observe(duration.Seconds())
}

func RecordEmbeddingCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	getMetrics().embeddingCache.WithLabelValues(result).Inc()
}

func RecordStorageRetry(op string) {
	getMetrics().storageRetries.WithLabelValues(op).Inc()
}

// RecordIngest counts a spool record. Status is stored, rejected or error.
func RecordIngest(status string) {
	getMetrics().ingestTotal.WithLabelValues(status).Inc()
}

func RecordMaintenance(success bool) {
	getMetrics().maintenanceRuns.WithLabelValues(status(success)).Inc()
}
