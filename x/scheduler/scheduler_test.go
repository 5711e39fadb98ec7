package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/compose-network/proof-orchestrator/log"
	"github.com/compose-network/proof-orchestrator/x/proofstore"
	"github.com/compose-network/proof-orchestrator/x/prover"
)

type fakeHeads struct {
	lastVerified  uint64
	lastCommitted uint64
}

func (h *fakeHeads) LastVerifiedBatch(context.Context) (uint64, error)  { return h.lastVerified, nil }
func (h *fakeHeads) LastCommittedBatch(context.Context) (uint64, error) { return h.lastCommitted, nil }

func newTestScheduler(t *testing.T, heads *fakeHeads) (*Scheduler, *proofstore.Memory) {
	t.Helper()
	store := proofstore.NewMemory()
	cfg := Config{LeaseTimeout: 10 * time.Minute, ScanWindow: 100}
	s := New(cfg, store, heads, log.Nop().Logger)
	return s, store
}

func TestScheduler_AssignsOldestUnverifiedFirst(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeHeads{lastVerified: 4, lastCommitted: 10})

	batch, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(5), batch)
}

func TestScheduler_SameTypeIsMutuallyExclusive(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeHeads{lastVerified: 0, lastCommitted: 3})

	first, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), first)

	// A second worker of the same type must get a different batch.
	second, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), second)
}

func TestScheduler_DifferentTypesShareABatch(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeHeads{lastVerified: 0, lastCommitted: 3})

	execBatch, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)

	sp1Batch, ok, err := s.NextBatch(context.Background(), prover.TypeSP1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, execBatch, sp1Batch)
}

func TestScheduler_SkipsBatchesWithStoredProofs(t *testing.T) {
	s, store := newTestScheduler(t, &fakeHeads{lastVerified: 0, lastCommitted: 5})

	require.NoError(t, store.Put(context.Background(), 1, prover.TypeExec, []byte("p")))
	require.NoError(t, store.Put(context.Background(), 2, prover.TypeExec, []byte("p")))

	batch, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), batch)

	// The proofs only exist for exec; sp1 still starts at the bottom.
	batch, ok, err = s.NextBatch(context.Background(), prover.TypeSP1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), batch)
}

func TestScheduler_NoWorkWhenCaughtUp(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeHeads{lastVerified: 7, lastCommitted: 7})

	_, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScheduler_ExpiredLeaseIsReassigned(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeHeads{lastVerified: 0, lastCommitted: 1})

	base := time.Now()
	s.now = func() time.Time { return base }

	batch, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), batch)

	// Within the lease window the batch stays held.
	s.now = func() time.Time { return base.Add(time.Minute) }
	_, ok, err = s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.False(t, ok)

	// After the lease times out the batch goes to the next worker.
	s.now = func() time.Time { return base.Add(11 * time.Minute) }
	batch, ok, err = s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), batch)
}

func TestScheduler_LeaseHeldAtExactTimeoutInstant(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeHeads{lastVerified: 0, lastCommitted: 1})

	base := time.Now()
	s.now = func() time.Time { return base }

	batch, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), batch)

	// At exactly lease age == LeaseTimeout the holder still owns the batch.
	s.now = func() time.Time { return base.Add(10 * time.Minute) }
	_, ok, err = s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.False(t, ok)

	// One instant past the timeout it becomes reassignable.
	s.now = func() time.Time { return base.Add(10*time.Minute + time.Nanosecond) }
	batch, ok, err = s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), batch)
}

func TestScheduler_ReleaseFreesTheBatch(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeHeads{lastVerified: 0, lastCommitted: 1})

	batch, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)

	s.Release(batch, prover.TypeExec)

	again, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, batch, again)
}

func TestScheduler_PrunesLeasesBelowVerifiedFrontier(t *testing.T) {
	heads := &fakeHeads{lastVerified: 0, lastCommitted: 5}
	s, _ := newTestScheduler(t, heads)

	_, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, s.Active(), 1)

	// Batches 1-3 get verified elsewhere; the stale lease must go away.
	heads.lastVerified = 3
	batch, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(4), batch)

	active := s.Active()
	require.Len(t, active, 1)
	require.Equal(t, uint64(4), active[0].BatchNumber)
}

func TestScheduler_ScanWindowBoundsTheScan(t *testing.T) {
	store := proofstore.NewMemory()
	cfg := Config{LeaseTimeout: 10 * time.Minute, ScanWindow: 2}
	s := New(cfg, store, &fakeHeads{lastVerified: 0, lastCommitted: 100}, log.Nop().Logger)

	for i := 0; i < 2; i++ {
		_, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Both batches inside the window are leased; nothing else is offered
	// even though committed batches remain.
	_, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScheduler_ResetClearsLeases(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeHeads{lastVerified: 0, lastCommitted: 2})

	_, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)

	s.Reset()
	require.Empty(t, s.Active())

	batch, ok, err := s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), batch)
}

func TestScheduler_ActiveIsSorted(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeHeads{lastVerified: 0, lastCommitted: 5})

	_, _, err := s.NextBatch(context.Background(), prover.TypeSP1)
	require.NoError(t, err)
	_, _, err = s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)
	_, _, err = s.NextBatch(context.Background(), prover.TypeExec)
	require.NoError(t, err)

	active := s.Active()
	require.Len(t, active, 3)
	require.Equal(t, uint64(1), active[0].BatchNumber)
	require.Equal(t, prover.TypeExec, active[0].ProverType)
	require.Equal(t, uint64(1), active[1].BatchNumber)
	require.Equal(t, prover.TypeSP1, active[1].ProverType)
	require.Equal(t, uint64(2), active[2].BatchNumber)
}
