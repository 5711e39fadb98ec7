package coordinator

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/compose-network/proof-orchestrator/x/prover"
)

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec(0)
	msgs := []*prover.Message{
		prover.NewBatchRequest(prover.TypeSP1, "deadbeef"),
		prover.NewBatchAssigned(42, []byte{0x01, 0x02, 0x03}),
		prover.NewProofSubmit(42, prover.TypeSP1, []byte{0xca, 0xfe}),
		prover.NewAck(42),
		{Type: prover.KindNoWork},
	}

	var buf bytes.Buffer
	for _, msg := range msgs {
		require.NoError(t, codec.WriteMessage(&buf, msg))
	}

	for _, want := range msgs {
		got, err := codec.ReadMessage(&buf)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestCodec_RejectsOversizedFrame(t *testing.T) {
	codec := NewCodec(16)

	var buf bytes.Buffer
	err := codec.WriteMessage(&buf, prover.NewProofSubmit(1, prover.TypeExec, make([]byte, 64)))
	var tooLarge *ErrFrameTooLarge
	require.ErrorAs(t, err, &tooLarge)

	// A peer announcing an oversized frame is rejected before the payload
	// is read.
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 1<<20)
	_, err = codec.ReadMessage(bytes.NewReader(header[:]))
	require.ErrorAs(t, err, &tooLarge)
	require.Equal(t, 1<<20, tooLarge.Size)
}

func TestCodec_RejectsEmptyAndInvalidFrames(t *testing.T) {
	codec := NewCodec(0)

	var empty [4]byte
	_, err := codec.ReadMessage(bytes.NewReader(empty[:]))
	require.Error(t, err)

	// Structurally valid JSON that fails envelope validation.
	payload, err := json.Marshal(&prover.Message{Type: prover.KindBatchRequest})
	require.NoError(t, err)
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	buf.Write(header[:])
	buf.Write(payload)

	_, err = codec.ReadMessage(&buf)
	require.Error(t, err)
}
