package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlqueue_jobs_submitted_total",
		Help: "Total number of jobs submitted",
	}, []string{"worker"})

	JobsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlqueue_jobs_completed_total",
		Help: "Total number of jobs completed successfully",
	}, []string{"worker"})

	JobsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlqueue_jobs_failed_total",
		Help: "Total number of jobs that failed permanently",
	}, []string{"worker"})

	JobsRequeuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlqueue_jobs_requeued_total",
		Help: "Total number of jobs requeued after a recoverable failure",
	}, []string{"worker"})

	StaleJobsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawlqueue_stale_jobs_recovered_total",
		Help: "Total number of abandoned processing jobs returned to pending",
	})

	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlqueue_result_cache_hits_total",
		Help: "Total number of jobs completed from a cached result",
	}, []string{"worker"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crawlqueue_fetch_duration_seconds",
		Help:    "Time taken by fetcher execution in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawlqueue_active_workers",
		Help: "Current number of active workers",
	})
)
