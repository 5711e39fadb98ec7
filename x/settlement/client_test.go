package settlement

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/compose-network/proof-orchestrator/x/prover"
)

func TestClassifyRevert_InvalidProofStrings(t *testing.T) {
	cases := []struct {
		reason string
		want   prover.Type
	}{
		{"Invalid EXEC proof", prover.TypeExec},
		{"Invalid SP1 proof", prover.TypeSP1},
		{"Invalid RISC0 proof", prover.TypeRISC0},
		{"Invalid TDX proof", prover.TypeTDX},
		{"Invalid Tokamak proof", prover.TypeTokamak},
		{"Tokamak proof verification failed", prover.TypeTokamak},
		{"execution failed: invalid sp1 proof for batch", prover.TypeSP1},
	}
	for _, tc := range cases {
		err := classifyRevert(9, tc.reason, fmt.Errorf("execution reverted"))

		var invalid *InvalidProofError
		require.ErrorAs(t, err, &invalid, tc.reason)
		require.Equal(t, uint64(9), invalid.Batch)
		require.Equal(t, tc.want, invalid.Prover)
		require.Equal(t, tc.reason, invalid.Reason)
	}
}

func TestClassifyRevert_OtherReasons(t *testing.T) {
	err := classifyRevert(3, "Batch not sequential", fmt.Errorf("execution reverted"))
	require.Error(t, err)

	var invalid *InvalidProofError
	require.False(t, errors.As(err, &invalid))
	require.Contains(t, err.Error(), "Batch not sequential")
}

func TestClassifyRevert_EmptyReasonWrapsCause(t *testing.T) {
	cause := fmt.Errorf("execution reverted")
	err := classifyRevert(3, "", cause)
	require.ErrorIs(t, err, cause)
}

func TestRevertReason_TextFallback(t *testing.T) {
	require.Equal(t, "Invalid TDX proof",
		revertReason(fmt.Errorf("execution reverted: Invalid TDX proof")))
	require.Equal(t, "", revertReason(fmt.Errorf("connection refused")))
}
