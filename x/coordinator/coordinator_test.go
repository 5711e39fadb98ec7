package coordinator

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/proof-orchestrator/x/proofstore"
	"github.com/compose-network/proof-orchestrator/x/prover"
	"github.com/compose-network/proof-orchestrator/x/scheduler"
)

type fakeHeads struct {
	lastVerified  uint64
	lastCommitted uint64
}

func (h *fakeHeads) LastVerifiedBatch(context.Context) (uint64, error)  { return h.lastVerified, nil }
func (h *fakeHeads) LastCommittedBatch(context.Context) (uint64, error) { return h.lastCommitted, nil }

type fakeInputs struct {
	mu     sync.Mutex
	inputs map[uint64][]byte
}

func (f *fakeInputs) ProvingInput(_ context.Context, batch uint64) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	input, ok := f.inputs[batch]
	return input, ok, nil
}

func (f *fakeInputs) set(batch uint64, input []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs[batch] = input
}

type testHarness struct {
	coordinator *Coordinator
	store       *proofstore.Memory
	addr        string
}

func startCoordinator(t *testing.T, heads *fakeHeads, provider *fakeInputs, required []prover.Type) *testHarness {
	t.Helper()

	store := proofstore.NewMemory()
	log := zerolog.New(io.Discard)
	sched := scheduler.New(
		scheduler.Config{LeaseTimeout: 10 * time.Minute, ScanWindow: 100},
		store, heads, log,
	)

	cfg := Config{
		ListenAddr:     "127.0.0.1:0",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxFrameSize:   DefaultMaxFrameSize,
		MaxConnections: 8,
		CommitHash:     "abc123",
	}
	c, err := New(cfg, sched, store, provider, required, log)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Stop(stopCtx)
	})

	return &testHarness{coordinator: c, store: store, addr: c.Addr().String()}
}

type testWorker struct {
	conn   net.Conn
	reader *bufio.Reader
	codec  *Codec
}

func dialWorker(t *testing.T, addr string) *testWorker {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testWorker{
		conn:   conn,
		reader: bufio.NewReader(conn),
		codec:  NewCodec(0),
	}
}

func (w *testWorker) roundTrip(t *testing.T, msg *prover.Message) *prover.Message {
	t.Helper()
	require.NoError(t, w.codec.WriteMessage(w.conn, msg))
	resp, err := w.codec.ReadMessage(w.reader)
	require.NoError(t, err)
	return resp
}

func TestCoordinator_AssignAndSubmitFlow(t *testing.T) {
	provider := &fakeInputs{inputs: map[uint64][]byte{
		1: []byte("input-1"),
		2: []byte("input-2"),
	}}
	h := startCoordinator(t, &fakeHeads{lastVerified: 0, lastCommitted: 2}, provider, []prover.Type{prover.TypeExec})
	w := dialWorker(t, h.addr)

	resp := w.roundTrip(t, prover.NewBatchRequest(prover.TypeExec, "abc123"))
	require.Equal(t, prover.KindBatchAssigned, resp.Type)
	require.Equal(t, uint64(1), resp.BatchAssigned.BatchNumber)
	require.Equal(t, []byte("input-1"), []byte(resp.BatchAssigned.Input))

	resp = w.roundTrip(t, prover.NewProofSubmit(1, prover.TypeExec, []byte("proof-1")))
	require.Equal(t, prover.KindAck, resp.Type)
	require.Equal(t, uint64(1), resp.Ack.BatchNumber)

	stored, ok, err := h.store.Get(context.Background(), 1, prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("proof-1"), stored)

	// Batch 1 is proven now; the next request moves on to batch 2.
	resp = w.roundTrip(t, prover.NewBatchRequest(prover.TypeExec, "abc123"))
	require.Equal(t, prover.KindBatchAssigned, resp.Type)
	require.Equal(t, uint64(2), resp.BatchAssigned.BatchNumber)
}

func TestCoordinator_DuplicateSubmitKeepsFirstProof(t *testing.T) {
	provider := &fakeInputs{inputs: map[uint64][]byte{1: []byte("input")}}
	h := startCoordinator(t, &fakeHeads{lastVerified: 0, lastCommitted: 1}, provider, []prover.Type{prover.TypeExec})
	w := dialWorker(t, h.addr)

	resp := w.roundTrip(t, prover.NewProofSubmit(1, prover.TypeExec, []byte("first")))
	require.Equal(t, prover.KindAck, resp.Type)

	resp = w.roundTrip(t, prover.NewProofSubmit(1, prover.TypeExec, []byte("late-duplicate")))
	require.Equal(t, prover.KindAck, resp.Type)

	stored, ok, err := h.store.Get(context.Background(), 1, prover.TypeExec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("first"), stored)
}

func TestCoordinator_RejectsUnneededProverType(t *testing.T) {
	provider := &fakeInputs{inputs: map[uint64][]byte{1: []byte("input")}}
	h := startCoordinator(t, &fakeHeads{lastVerified: 0, lastCommitted: 1}, provider, []prover.Type{prover.TypeExec})
	w := dialWorker(t, h.addr)

	resp := w.roundTrip(t, prover.NewBatchRequest(prover.TypeTDX, "abc123"))
	require.Equal(t, prover.KindProverTypeUnused, resp.Type)
}

func TestCoordinator_NoWorkVsVersionMismatch(t *testing.T) {
	provider := &fakeInputs{inputs: map[uint64][]byte{}}
	h := startCoordinator(t, &fakeHeads{lastVerified: 5, lastCommitted: 5}, provider, []prover.Type{prover.TypeExec})
	w := dialWorker(t, h.addr)

	// Matching build with no work queued.
	resp := w.roundTrip(t, prover.NewBatchRequest(prover.TypeExec, "abc123"))
	require.Equal(t, prover.KindNoWork, resp.Type)

	// Stale build gets told to update instead.
	resp = w.roundTrip(t, prover.NewBatchRequest(prover.TypeExec, "stale"))
	require.Equal(t, prover.KindVersionMismatch, resp.Type)
}

func TestCoordinator_MissingInputReleasesLease(t *testing.T) {
	// Batch 1 is committed but the sequencer has no input for it yet.
	provider := &fakeInputs{inputs: map[uint64][]byte{}}
	h := startCoordinator(t, &fakeHeads{lastVerified: 0, lastCommitted: 1}, provider, []prover.Type{prover.TypeExec})
	w := dialWorker(t, h.addr)

	resp := w.roundTrip(t, prover.NewBatchRequest(prover.TypeExec, "abc123"))
	require.Equal(t, prover.KindNoWork, resp.Type)

	// The lease must have been released, so the batch is assignable once
	// the input shows up.
	provider.set(1, []byte("late-input"))
	resp = w.roundTrip(t, prover.NewBatchRequest(prover.TypeExec, "abc123"))
	require.Equal(t, prover.KindBatchAssigned, resp.Type)
	require.Equal(t, uint64(1), resp.BatchAssigned.BatchNumber)
}

func TestCoordinator_UnexpectedMessageType(t *testing.T) {
	provider := &fakeInputs{inputs: map[uint64][]byte{}}
	h := startCoordinator(t, &fakeHeads{}, provider, []prover.Type{prover.TypeExec})
	w := dialWorker(t, h.addr)

	resp := w.roundTrip(t, prover.NewAck(3))
	require.Equal(t, prover.KindError, resp.Type)
	require.NotEmpty(t, resp.Error.Message)
}
