package proofstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/compose-network/proof-orchestrator/x/prover"
)

func TestMemory_PutIsIdempotent(t *testing.T) {
	s := NewMemory()

	require.NoError(t, s.Put(context.Background(), 5, prover.TypeExec, []byte("first")))
	require.NoError(t, s.Put(context.Background(), 5, prover.TypeExec, []byte("second")))

	got, ok, err := s.Get(context.Background(), 5, prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("first"), got)
}

func TestMemory_KeysAreIndependentPerType(t *testing.T) {
	s := NewMemory()

	require.NoError(t, s.Put(context.Background(), 5, prover.TypeExec, []byte("exec")))
	require.NoError(t, s.Put(context.Background(), 5, prover.TypeSP1, []byte("sp1")))

	execProof, ok, err := s.Get(context.Background(), 5, prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("exec"), execProof)

	_, ok, err = s.Get(context.Background(), 5, prover.TypeTDX)
	require.NoError(t, err)
	require.False(t, ok)

	keys, err := s.Keys(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []Key{
		{Batch: 5, Prover: prover.TypeExec},
		{Batch: 5, Prover: prover.TypeSP1},
	}, keys)
}

func TestMemory_Delete(t *testing.T) {
	s := NewMemory()

	require.NoError(t, s.Put(context.Background(), 9, prover.TypeRISC0, []byte("p")))
	require.NoError(t, s.Delete(context.Background(), 9, prover.TypeRISC0))

	_, ok, err := s.Get(context.Background(), 9, prover.TypeRISC0)
	require.NoError(t, err)
	require.False(t, ok)

	// Deleting again is a no-op.
	require.NoError(t, s.Delete(context.Background(), 9, prover.TypeRISC0))

	// A new Put after Delete replaces the record.
	require.NoError(t, s.Put(context.Background(), 9, prover.TypeRISC0, []byte("recomputed")))
	got, ok, err := s.Get(context.Background(), 9, prover.TypeRISC0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("recomputed"), got)
}

func TestMemory_PruneBelow(t *testing.T) {
	s := NewMemory()

	for batch := uint64(1); batch <= 5; batch++ {
		require.NoError(t, s.Put(context.Background(), batch, prover.TypeExec, []byte("p")))
	}

	pruned, err := s.PruneBelow(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, 3, pruned)

	keys, err := s.Keys(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []Key{
		{Batch: 4, Prover: prover.TypeExec},
		{Batch: 5, Prover: prover.TypeExec},
	}, keys)
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Put(context.Background(), 1, prover.TypeExec, []byte{1, 2, 3}))

	got, ok, err := s.Get(context.Background(), 1, prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	got[0] = 0xff

	again, _, err := s.Get(context.Background(), 1, prover.TypeExec)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, again)
}

func TestHasAll(t *testing.T) {
	s := NewMemory()
	required := []prover.Type{prover.TypeExec, prover.TypeSP1}

	ok, err := HasAll(context.Background(), s, 3, required)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put(context.Background(), 3, prover.TypeExec, []byte("p")))
	ok, err = HasAll(context.Background(), s, 3, required)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put(context.Background(), 3, prover.TypeSP1, []byte("p")))
	ok, err = HasAll(context.Background(), s, 3, required)
	require.NoError(t, err)
	require.True(t, ok)
}
