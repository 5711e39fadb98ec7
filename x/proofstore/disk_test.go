package proofstore

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/proof-orchestrator/x/prover"
)

func newTestDisk(t *testing.T) (*Disk, string) {
	t.Helper()
	dir := t.TempDir()
	d, err := NewDisk(dir, zerolog.New(io.Discard))
	require.NoError(t, err)
	return d, dir
}

func TestDisk_PutGetRoundTrip(t *testing.T) {
	d, _ := newTestDisk(t)

	proof := []byte{0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, d.Put(context.Background(), 12, prover.TypeSP1, proof))

	got, ok, err := d.Get(context.Background(), 12, prover.TypeSP1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, proof, got)

	_, ok, err = d.Get(context.Background(), 12, prover.TypeExec)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDisk_PutIsIdempotent(t *testing.T) {
	d, _ := newTestDisk(t)

	require.NoError(t, d.Put(context.Background(), 3, prover.TypeExec, []byte("first")))
	require.NoError(t, d.Put(context.Background(), 3, prover.TypeExec, []byte("second")))

	got, ok, err := d.Get(context.Background(), 3, prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("first"), got)
}

func TestDisk_SurvivesReopen(t *testing.T) {
	d, dir := newTestDisk(t)
	require.NoError(t, d.Put(context.Background(), 8, prover.TypeTDX, []byte("persisted")))

	reopened, err := NewDisk(dir, zerolog.New(io.Discard))
	require.NoError(t, err)

	got, ok, err := reopened.Get(context.Background(), 8, prover.TypeTDX)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("persisted"), got)

	keys, err := reopened.Keys(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Key{{Batch: 8, Prover: prover.TypeTDX}}, keys)
}

func TestDisk_DeleteAndPrune(t *testing.T) {
	d, _ := newTestDisk(t)

	for batch := uint64(1); batch <= 4; batch++ {
		require.NoError(t, d.Put(context.Background(), batch, prover.TypeExec, []byte("p")))
	}
	require.NoError(t, d.Delete(context.Background(), 4, prover.TypeExec))
	require.NoError(t, d.Delete(context.Background(), 4, prover.TypeExec)) // absent key

	pruned, err := d.PruneBelow(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 2, pruned)

	keys, err := d.Keys(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Key{{Batch: 3, Prover: prover.TypeExec}}, keys)
}

func TestParseRecordName(t *testing.T) {
	key, ok := parseRecordName("00000000000000000042-risc0.json")
	require.True(t, ok)
	require.Equal(t, Key{Batch: 42, Prover: prover.TypeRISC0}, key)

	for _, name := range []string{
		"not-a-record.txt",
		"00000000000000000042-groth16.json",
		"nodash.json",
		".proof-tmp123",
	} {
		_, ok := parseRecordName(name)
		require.False(t, ok, name)
	}
}
