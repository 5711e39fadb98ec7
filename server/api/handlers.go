package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/compose-network/proof-orchestrator/metrics"
	"github.com/compose-network/proof-orchestrator/x/proofstore"
	"github.com/compose-network/proof-orchestrator/x/prover"
	"github.com/compose-network/proof-orchestrator/x/scheduler"
	"github.com/compose-network/proof-orchestrator/x/settlement"
)

// Handlers exposes the orchestrator's read-only inspection endpoints.
type Handlers struct {
	store    proofstore.Store
	sched    *scheduler.Scheduler
	heads    settlement.Client
	required []prover.Type
}

func NewHandlers(
	store proofstore.Store,
	sched *scheduler.Scheduler,
	heads settlement.Client,
	required []prover.Type,
) *Handlers {
	return &Handlers{
		store:    store,
		sched:    sched,
		heads:    heads,
		required: required,
	}
}

// Register attaches all routes to the server's router.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.Ready).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	r.HandleFunc("/assignments", h.Assignments).Methods(http.MethodGet)
	r.HandleFunc("/proofs/{batch}", h.BatchProofs).Methods(http.MethodGet)
}

// RegisterMetrics exposes the shared Prometheus registry.
func RegisterMetrics(r *mux.Router) {
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
		Methods(http.MethodGet)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the settlement layer is reachable; load
// balancers should not route to an orchestrator that cannot read the
// verified frontier.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.heads.LastVerifiedBatch(ctx); err != nil {
		WriteError(w, r, http.StatusServiceUnavailable, "settlement_unreachable", err.Error(), nil)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lastVerified, err := h.heads.LastVerifiedBatch(ctx)
	if err != nil {
		WriteError(w, r, http.StatusBadGateway, "settlement_error", err.Error(), nil)
		return
	}
	lastCommitted, err := h.heads.LastCommittedBatch(ctx)
	if err != nil {
		WriteError(w, r, http.StatusBadGateway, "settlement_error", err.Error(), nil)
		return
	}
	keys, err := h.store.Keys(ctx)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "store_error", err.Error(), nil)
		return
	}

	types := make([]string, 0, len(h.required))
	for _, t := range h.required {
		types = append(types, t.String())
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"last_verified_batch":   lastVerified,
		"last_committed_batch":  lastCommitted,
		"stored_proofs":         len(keys),
		"active_assignments":    len(h.sched.Active()),
		"required_prover_types": types,
	})
}

func (h *Handlers) Assignments(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"assignments": h.sched.Active(),
	})
}

// BatchProofs reports, per required prover type, whether a proof is
// stored for the batch and how large it is.
func (h *Handlers) BatchProofs(w http.ResponseWriter, r *http.Request) {
	batch, err := strconv.ParseUint(mux.Vars(r)["batch"], 10, 64)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_batch", "batch must be a non-negative integer", nil)
		return
	}

	type proofStatus struct {
		Stored bool `json:"stored"`
		Bytes  int  `json:"bytes,omitempty"`
	}

	statuses := make(map[string]proofStatus, len(h.required))
	complete := true
	for _, t := range h.required {
		proof, ok, err := h.store.Get(r.Context(), batch, t)
		if err != nil {
			WriteError(w, r, http.StatusInternalServerError, "store_error", err.Error(), nil)
			return
		}
		statuses[t.String()] = proofStatus{Stored: ok, Bytes: len(proof)}
		if !ok {
			complete = false
		}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"batch_number": batch,
		"complete":     complete,
		"proofs":       statuses,
	})
}
