package inputs

import "context"

// Provider supplies the proving input for a batch. Input construction is
// owned by the sequencer; the coordinator only forwards the bytes to the
// worker that was assigned the batch.
type Provider interface {
	// ProvingInput returns the input for the batch, or ok=false when the
	// batch's input is not (yet) available.
	ProvingInput(ctx context.Context, batch uint64) ([]byte, bool, error)
}
