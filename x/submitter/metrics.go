package submitter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/proof-orchestrator/metrics"
)

// Metrics holds submission driver metrics.
type Metrics struct {
	registry *metrics.ComponentRegistry

	TicksTotal          prometheus.Counter
	BatchesVerified     *prometheus.CounterVec
	SubmissionsTotal    *prometheus.CounterVec
	FallbacksTotal      prometheus.Counter
	InvalidProofsTotal  *prometheus.CounterVec
	LastVerifiedBatch   prometheus.Gauge
	ReadyBatches        prometheus.Gauge
	SubmissionDuration  prometheus.Histogram
	ProofRecordsRemoved prometheus.Counter
}

// NewMetrics creates submission driver metrics.
func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry("orchestrator", "submitter")

	return &Metrics{
		registry: reg,

		TicksTotal: reg.NewCounter(prometheus.CounterOpts{
			Name: "ticks_total",
			Help: "Total number of submission ticks",
		}),

		BatchesVerified: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "batches_verified_total",
			Help: "Batches verified on the settlement layer by submission mode",
		}, []string{"mode"}),

		SubmissionsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Settlement transactions by mode and result",
		}, []string{"mode", "result"}),

		FallbacksTotal: reg.NewCounter(prometheus.CounterOpts{
			Name: "fallbacks_total",
			Help: "Times a multi-batch submission degraded to per-batch submissions",
		}),

		InvalidProofsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "invalid_proofs_total",
			Help: "Proof records deleted after the settlement layer rejected them",
		}, []string{"prover"}),

		LastVerifiedBatch: reg.NewGauge(prometheus.GaugeOpts{
			Name: "last_verified_batch",
			Help: "Highest batch number observed as verified",
		}),

		ReadyBatches: reg.NewGauge(prometheus.GaugeOpts{
			Name: "ready_batches",
			Help: "Length of the consecutive fully-proven run found on the last tick",
		}),

		SubmissionDuration: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "submission_duration_seconds",
			Help:    "Wall time of one settlement submission including receipt wait",
			Buckets: metrics.DurationBuckets,
		}),

		ProofRecordsRemoved: reg.NewCounter(prometheus.CounterOpts{
			Name: "proof_records_removed_total",
			Help: "Proof records pruned after their batches were verified",
		}),
	}
}
