package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/proof-orchestrator/x/proofstore"
	"github.com/compose-network/proof-orchestrator/x/prover"
)

// HeadSource exposes the settlement counters the scheduler scans between.
// Satisfied by settlement.Client.
type HeadSource interface {
	LastVerifiedBatch(ctx context.Context) (uint64, error)
	LastCommittedBatch(ctx context.Context) (uint64, error)
}

// Config holds scheduler tuning knobs.
type Config struct {
	// LeaseTimeout is how long an assignment is presumed alive before the
	// batch becomes eligible for reassignment to another worker of the
	// same type.
	LeaseTimeout time.Duration `mapstructure:"lease_timeout" yaml:"lease_timeout"`

	// ScanWindow caps how many batches above the oldest unverified batch
	// a single NextBatch call will consider.
	ScanWindow uint64 `mapstructure:"scan_window" yaml:"scan_window"`
}

// Validate checks the scheduler configuration.
func (c Config) Validate() error {
	if c.LeaseTimeout <= 0 {
		return fmt.Errorf("scheduler.lease_timeout must be positive")
	}
	if c.ScanWindow == 0 {
		return fmt.Errorf("scheduler.scan_window must be positive")
	}
	return nil
}

type leaseKey struct {
	batch uint64
	t     prover.Type
}

// Lease describes one active assignment, for the inspection API.
type Lease struct {
	BatchNumber uint64      `json:"batch_number"`
	ProverType  prover.Type `json:"prover_type"`
	AssignedAt  time.Time   `json:"assigned_at"`
}

// Scheduler decides, per prover type, the next batch that type should
// work on, and tracks in-flight leases. Leases are keyed by
// (batch, prover type): two workers of different types may hold the same
// batch concurrently, while two workers of the same type are mutually
// exclusive on it. The map is process-local and lost on restart, which is
// safe because the proof store's idempotent writes make reassignment
// always harmless.
type Scheduler struct {
	cfg   Config
	store proofstore.Store
	heads HeadSource
	log   zerolog.Logger
	now   func() time.Time

	mu     sync.Mutex
	leases map[leaseKey]time.Time
}

// New returns a Scheduler over the given proof store and head source.
func New(cfg Config, store proofstore.Store, heads HeadSource, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		store:  store,
		heads:  heads,
		log:    log.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
		leases: make(map[leaseKey]time.Time),
	}
}

// NextBatch scans from the oldest not-yet-verified batch upward and
// returns the first batch for which this prover type has neither a stored
// proof nor a fresh lease. A lease is recorded for the returned batch.
// The second return value is false when no work is available, which is a
// normal outcome rather than an error.
func (s *Scheduler) NextBatch(ctx context.Context, t prover.Type) (uint64, bool, error) {
	lastVerified, err := s.heads.LastVerifiedBatch(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read last verified batch: %w", err)
	}
	lastCommitted, err := s.heads.LastCommittedBatch(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read last committed batch: %w", err)
	}

	base := lastVerified + 1
	if lastCommitted < base {
		return 0, false, nil
	}
	limit := lastCommitted
	if span := base + s.cfg.ScanWindow - 1; span < limit {
		limit = span
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(base)

	now := s.now()
	for batch := base; batch <= limit; batch++ {
		_, proven, err := s.store.Get(ctx, batch, t)
		if err != nil {
			return 0, false, fmt.Errorf("failed to check proof record: %w", err)
		}
		if proven {
			continue
		}
		if assignedAt, ok := s.leases[leaseKey{batch: batch, t: t}]; ok {
			// The holder keeps the batch through the full timeout,
			// including the exact expiry instant.
			if now.Sub(assignedAt) <= s.cfg.LeaseTimeout {
				continue
			}
			s.log.Debug().
				Uint64("batch", batch).
				Stringer("prover", t).
				Time("assigned_at", assignedAt).
				Msg("Lease expired, reassigning batch")
		}

		s.leases[leaseKey{batch: batch, t: t}] = now
		return batch, true, nil
	}

	return 0, false, nil
}

// Release drops the lease for (batch, t). Called when the proof arrives
// or when an assignment cannot be fulfilled; releasing an absent lease is
// a no-op.
func (s *Scheduler) Release(batch uint64, t prover.Type) {
	s.mu.Lock()
	delete(s.leases, leaseKey{batch: batch, t: t})
	s.mu.Unlock()
}

// Active returns a snapshot of the non-expired leases, sorted by batch
// then prover type.
func (s *Scheduler) Active() []Lease {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]Lease, 0, len(s.leases))
	for key, assignedAt := range s.leases {
		if now.Sub(assignedAt) > s.cfg.LeaseTimeout {
			continue
		}
		out = append(out, Lease{
			BatchNumber: key.batch,
			ProverType:  key.t,
			AssignedAt:  assignedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BatchNumber != out[j].BatchNumber {
			return out[i].BatchNumber < out[j].BatchNumber
		}
		return out[i].ProverType < out[j].ProverType
	})
	return out
}

// Reset clears every lease, as a coordinator restart would.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.leases = make(map[leaseKey]time.Time)
	s.mu.Unlock()
}

// pruneLocked discards leases for batches already verified on-chain;
// expired leases are overwritten in place by the scan. Callers hold s.mu.
func (s *Scheduler) pruneLocked(base uint64) {
	for key := range s.leases {
		if key.batch < base {
			delete(s.leases, key)
		}
	}
}
