package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/proof-orchestrator/metrics"
)

// Metrics holds coordinator-level metrics.
type Metrics struct {
	registry *metrics.ComponentRegistry

	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  *prometheus.CounterVec
	BatchRequests     *prometheus.CounterVec
	BatchesAssigned   *prometheus.CounterVec
	ProofsReceived    *prometheus.CounterVec
	DuplicateProofs   *prometheus.CounterVec
	ProofSizeBytes    prometheus.Histogram
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics creates coordinator metrics.
func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry("orchestrator", "coordinator")

	return &Metrics{
		registry: reg,

		ConnectionsActive: reg.NewGauge(prometheus.GaugeOpts{
			Name: "connections_active",
			Help: "Number of active worker connections",
		}),

		ConnectionsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "connections_total",
			Help: "Total number of worker connections",
		}, []string{"status"}),

		BatchRequests: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_requests_total",
			Help: "Total batch requests by prover type and outcome",
		}, []string{"prover", "outcome"}),

		BatchesAssigned: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "batches_assigned_total",
			Help: "Total batches handed out by prover type",
		}, []string{"prover"}),

		ProofsReceived: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "proofs_received_total",
			Help: "Total proofs accepted by prover type",
		}, []string{"prover"}),

		DuplicateProofs: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "duplicate_proofs_total",
			Help: "Proof submissions discarded because the record already existed",
		}, []string{"prover"}),

		ProofSizeBytes: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "proof_size_bytes",
			Help:    "Size of submitted proofs in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),

		ErrorsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors",
		}, []string{"operation"}),
	}
}
