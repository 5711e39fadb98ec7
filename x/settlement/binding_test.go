package settlement

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/compose-network/proof-orchestrator/x/prover"
)

const testContract = "0x1111111111111111111111111111111111111111"

func TestNewVerifierBinding_ValidatesAddress(t *testing.T) {
	_, err := NewVerifierBinding("")
	require.Error(t, err)

	_, err = NewVerifierBinding("not-an-address")
	require.Error(t, err)

	b, err := NewVerifierBinding(testContract)
	require.NoError(t, err)
	require.Equal(t, testContract, b.Address().Hex())
}

func TestUnpackBatchCounter(t *testing.T) {
	b, err := NewVerifierBinding(testContract)
	require.NoError(t, err)

	out, err := b.ABI().Methods["lastVerifiedBatch"].Outputs.Pack(big.NewInt(1729))
	require.NoError(t, err)

	got, err := b.UnpackBatchCounter("lastVerifiedBatch", out)
	require.NoError(t, err)
	require.Equal(t, uint64(1729), got)
}

func TestPackVerifyBatch_RoundTrip(t *testing.T) {
	b, err := NewVerifierBinding(testContract)
	require.NoError(t, err)

	proofs := BatchProofs{
		prover.TypeExec: []byte{0x01, 0x02},
		prover.TypeSP1:  []byte{0x03},
	}
	data, err := b.PackVerifyBatch(7, proofs)
	require.NoError(t, err)

	method := b.ABI().Methods["verifyBatch"]
	require.Equal(t, method.ID, data[:4])

	values, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, values, 6)
	require.Equal(t, big.NewInt(7), values[0])
	require.Equal(t, []byte{0x01, 0x02}, values[1])
	require.Equal(t, []byte{0x03}, values[2])
	// Types without a proof are encoded as empty bytes.
	require.Empty(t, values[3])
	require.Empty(t, values[4])
	require.Empty(t, values[5])
}

func TestPackVerifyBatches_RoundTrip(t *testing.T) {
	b, err := NewVerifierBinding(testContract)
	require.NoError(t, err)

	proofs := []BatchProofs{
		{prover.TypeExec: []byte{0xaa}},
		{prover.TypeExec: []byte{0xbb}},
	}
	data, err := b.PackVerifyBatches(5, proofs)
	require.NoError(t, err)

	method := b.ABI().Methods["verifyBatches"]
	require.Equal(t, method.ID, data[:4])

	values, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, values, 6)
	require.Equal(t, big.NewInt(5), values[0])

	execProofs, ok := values[1].([][]byte)
	require.True(t, ok)
	require.Equal(t, [][]byte{{0xaa}, {0xbb}}, execProofs)

	sp1Proofs, ok := values[2].([][]byte)
	require.True(t, ok)
	require.Len(t, sp1Proofs, 2)
	require.Empty(t, sp1Proofs[0])
	require.Empty(t, sp1Proofs[1])
}

func TestPackVerifyBatches_RejectsEmptyRange(t *testing.T) {
	b, err := NewVerifierBinding(testContract)
	require.NoError(t, err)

	_, err = b.PackVerifyBatches(1, nil)
	require.Error(t, err)
}
