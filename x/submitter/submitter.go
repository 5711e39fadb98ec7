package submitter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/proof-orchestrator/x/proofstore"
	"github.com/compose-network/proof-orchestrator/x/prover"
	"github.com/compose-network/proof-orchestrator/x/settlement"
)

// Submitter drives proofs from the store to the settlement layer. Each
// tick it collects the consecutive run of fully proven batches directly
// above the last verified one and submits them, preferring a single
// multi-batch transaction and degrading to per-batch transactions when
// that fails.
type Submitter struct {
	cfg      Config
	store    proofstore.Store
	client   settlement.Client
	required []prover.Type
	log      zerolog.Logger
	metrics  *Metrics

	mu      sync.Mutex
	started bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

// New wires a Submitter; required is the deployment's set of prover
// types a batch needs before it can be submitted.
func New(
	cfg Config,
	store proofstore.Store,
	client settlement.Client,
	required []prover.Type,
	log zerolog.Logger,
) (*Submitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(required) == 0 {
		return nil, fmt.Errorf("at least one required prover type is needed")
	}

	return &Submitter{
		cfg:      cfg,
		store:    store,
		client:   client,
		required: required,
		log:      log.With().Str("component", "submitter").Logger(),
		metrics:  NewMetrics(),
		quit:     make(chan struct{}),
	}, nil
}

// Start launches the submission loop.
func (s *Submitter) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true

	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Int("max_batches_per_tx", s.cfg.MaxBatchesPerTx).
		Msg("Submission loop started")

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop halts the submission loop. An in-flight tick runs to completion.
func (s *Submitter) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.quit)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info().Msg("Submission loop stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Submitter) loop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := s.Tick(ctx); err != nil {
			s.log.Error().Err(err).Msg("Submission tick failed")
		}
		timer.Reset(s.nextDelay())
	}
}

func (s *Submitter) nextDelay() time.Duration {
	d := s.cfg.Interval
	if s.cfg.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(s.cfg.Jitter)))
	}
	return d
}

// Tick runs one submission round. Exported so tests and operators can
// trigger a round without waiting for the timer.
func (s *Submitter) Tick(ctx context.Context) error {
	s.metrics.TicksTotal.Inc()

	lastVerified, err := s.client.LastVerifiedBatch(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last verified batch: %w", err)
	}
	s.metrics.LastVerifiedBatch.Set(float64(lastVerified))

	lastCommitted, err := s.client.LastCommittedBatch(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last committed batch: %w", err)
	}

	first := lastVerified + 1
	run, err := s.collectRun(ctx, first, lastCommitted)
	if err != nil {
		return err
	}
	s.metrics.ReadyBatches.Set(float64(len(run)))
	if len(run) == 0 {
		s.log.Debug().
			Uint64("last_verified", lastVerified).
			Uint64("last_committed", lastCommitted).
			Msg("No fully proven batches to submit")
		return nil
	}

	verified, err := s.submitRun(ctx, first, run)
	if verified > 0 {
		s.metrics.LastVerifiedBatch.Set(float64(first + uint64(verified) - 1))
		s.prune(ctx, first+uint64(verified))
	}
	return err
}

// collectRun gathers proofs for the longest consecutive run of fully
// proven batches in [first, lastCommitted], capped at MaxBatchesPerTx.
// A single missing proof type ends the run; later batches cannot be
// submitted ahead of the gap because verification is strictly
// sequential.
func (s *Submitter) collectRun(ctx context.Context, first, lastCommitted uint64) ([]settlement.BatchProofs, error) {
	var run []settlement.BatchProofs
	for batch := first; batch <= lastCommitted && len(run) < s.cfg.MaxBatchesPerTx; batch++ {
		proofs, complete, err := s.loadProofs(ctx, batch)
		if err != nil {
			return nil, err
		}
		if !complete {
			break
		}
		run = append(run, proofs)
	}
	return run, nil
}

func (s *Submitter) loadProofs(ctx context.Context, batch uint64) (settlement.BatchProofs, bool, error) {
	proofs := make(settlement.BatchProofs, len(s.required))
	for _, t := range s.required {
		proof, ok, err := s.store.Get(ctx, batch, t)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load %s proof for batch %d: %w", t, batch, err)
		}
		if !ok {
			return nil, false, nil
		}
		proofs[t] = proof
	}
	return proofs, true, nil
}

// submitRun pushes the run to the settlement layer and returns how many
// batches were verified. A failing multi-batch transaction degrades to
// per-batch submissions in increasing order, halting at the first
// failure so later batches are never attempted past a gap.
func (s *Submitter) submitRun(ctx context.Context, first uint64, run []settlement.BatchProofs) (int, error) {
	if len(run) > 1 {
		err := s.submitMany(ctx, first, run)
		if err == nil {
			return len(run), nil
		}
		s.log.Warn().Err(err).
			Uint64("first_batch", first).
			Int("batches", len(run)).
			Msg("Multi-batch submission failed, degrading to per-batch submissions")
		s.metrics.FallbacksTotal.Inc()
	}

	for i, proofs := range run {
		batch := first + uint64(i)
		if err := s.submitSingle(ctx, batch, proofs); err != nil {
			return i, err
		}
	}
	return len(run), nil
}

func (s *Submitter) submitMany(ctx context.Context, first uint64, run []settlement.BatchProofs) error {
	s.log.Info().
		Uint64("first_batch", first).
		Uint64("last_batch", first+uint64(len(run))-1).
		Msg("Submitting batch range for verification")

	start := time.Now()
	err := s.client.SubmitVerifyMany(ctx, first, run)
	s.metrics.SubmissionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.SubmissionsTotal.WithLabelValues("many", "failure").Inc()
		return err
	}

	s.metrics.SubmissionsTotal.WithLabelValues("many", "success").Inc()
	s.metrics.BatchesVerified.WithLabelValues("many").Add(float64(len(run)))
	s.log.Info().
		Uint64("first_batch", first).
		Int("batches", len(run)).
		Msg("Batch range verified")
	return nil
}

func (s *Submitter) submitSingle(ctx context.Context, batch uint64, proofs settlement.BatchProofs) error {
	start := time.Now()
	err := s.client.SubmitVerifySingle(ctx, batch, proofs)
	s.metrics.SubmissionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.SubmissionsTotal.WithLabelValues("single", "failure").Inc()
		return s.handleSubmitError(ctx, err)
	}

	s.metrics.SubmissionsTotal.WithLabelValues("single", "success").Inc()
	s.metrics.BatchesVerified.WithLabelValues("single").Inc()
	s.log.Info().Uint64("batch", batch).Msg("Batch verified")
	return nil
}

// handleSubmitError deletes the proof record the settlement layer called
// invalid so the scheduler hands the batch out again and a worker
// recomputes it.
func (s *Submitter) handleSubmitError(ctx context.Context, err error) error {
	var invalid *settlement.InvalidProofError
	if !errors.As(err, &invalid) {
		return err
	}

	s.log.Warn().
		Uint64("batch", invalid.Batch).
		Stringer("prover", invalid.Prover).
		Str("reason", invalid.Reason).
		Msg("Settlement rejected proof, deleting record for recomputation")

	if delErr := s.store.Delete(ctx, invalid.Batch, invalid.Prover); delErr != nil {
		return fmt.Errorf("failed to delete rejected proof record: %w (submit error: %v)", delErr, err)
	}
	s.metrics.InvalidProofsTotal.WithLabelValues(invalid.Prover.String()).Inc()
	return err
}

// prune discards records for batches below the verified frontier. Best
// effort: a failed prune only costs storage, never correctness.
func (s *Submitter) prune(ctx context.Context, below uint64) {
	pruner, ok := s.store.(proofstore.Pruner)
	if !ok {
		return
	}
	removed, err := pruner.PruneBelow(ctx, below)
	if err != nil {
		s.log.Warn().Err(err).Uint64("below", below).Msg("Failed to prune verified proof records")
		return
	}
	if removed > 0 {
		s.metrics.ProofRecordsRemoved.Add(float64(removed))
		s.log.Debug().Int("removed", removed).Uint64("below", below).Msg("Pruned verified proof records")
	}
}
