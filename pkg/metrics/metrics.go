package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "qabase"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	// ImportRecords counts import outcomes: inserted, updated, skipped, errored.
	ImportRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "import_records_total", Help: "Number of imported input entries by outcome."},
		[]string{"schema", "outcome"},
	)
	ReferenceUpserts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "reference_upserts_total", Help: "Number of reference upserts by collection and result."},
		[]string{"collection", "result"},
	)
	DedupDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "dedup_deleted_total", Help: "Number of duplicate records deleted."},
		[]string{"collection"},
	)
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "run_duration_seconds", Help: "Duration of batch runs.", Buckets: prometheus.DefBuckets},
		[]string{"kind"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(ImportRecords)
	reg.MustRegister(ReferenceUpserts)
	reg.MustRegister(DedupDeleted)
	reg.MustRegister(RunDuration)
}
