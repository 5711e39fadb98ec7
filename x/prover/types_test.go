package prover

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	for name, want := range map[string]Type{
		"exec":    TypeExec,
		"SP1":     TypeSP1,
		" tdx ":   TypeTDX,
		"Risc0":   TypeRISC0,
		"Tokamak": TypeTokamak,
	} {
		got, err := ParseType(name)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseType("groth16")
	require.Error(t, err)
}

func TestParseTypes_RejectsDuplicates(t *testing.T) {
	got, err := ParseTypes([]string{"exec", "sp1"})
	require.NoError(t, err)
	require.Equal(t, []Type{TypeExec, TypeSP1}, got)

	_, err = ParseTypes([]string{"exec", "EXEC"})
	require.Error(t, err)
}

func TestType_JSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal(TypeRISC0)
	require.NoError(t, err)
	require.Equal(t, `"risc0"`, string(raw))

	var parsed Type
	require.NoError(t, json.Unmarshal(raw, &parsed))
	require.Equal(t, TypeRISC0, parsed)

	_, err = json.Marshal(TypeUnknown)
	require.Error(t, err)
}

func TestContains(t *testing.T) {
	required := []Type{TypeExec, TypeTDX}
	require.True(t, Contains(required, TypeExec))
	require.False(t, Contains(required, TypeSP1))
	require.False(t, Contains(nil, TypeExec))
}
