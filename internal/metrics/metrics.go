package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails sent",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total failed email send attempts",
		},
	)

	JobsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulk_jobs_submitted_total",
			Help: "Total bulk send jobs accepted",
		},
	)

	BatchesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batches_processed_total",
			Help: "Total batch processing attempts by outcome",
		},
		[]string{"outcome"},
	)

	ConflictRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_conflict_retries_total",
			Help: "Total optimistic write conflicts on batch updates",
		},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_cycle_duration_seconds",
			Help:    "Duration of one worker poll cycle",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func Init() {
	prometheus.MustRegister(
		EmailsSent,
		EmailFailures,
		JobsSubmitted,
		BatchesProcessed,
		ConflictRetries,
		CycleDuration,
	)
}
