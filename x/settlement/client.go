package settlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/compose-network/proof-orchestrator/x/prover"
)

// BatchProofs maps each prover type to the proof bytes submitted for one
// batch. Types the deployment does not require are simply absent; the
// calldata encoder substitutes empty bytes for them.
type BatchProofs map[prover.Type][]byte

// Client is the orchestrator's view of the settlement layer: two
// monotonically increasing counters and two submission paths. The
// contract enforces strict sequential verification, so a single-batch
// submission only succeeds when batch == lastVerifiedBatch+1, and a
// multi-batch submission fails atomically if anything in the range is
// rejected.
type Client interface {
	LastVerifiedBatch(ctx context.Context) (uint64, error)
	LastCommittedBatch(ctx context.Context) (uint64, error)

	// SubmitVerifySingle verifies exactly one batch.
	SubmitVerifySingle(ctx context.Context, batch uint64, proofs BatchProofs) error

	// SubmitVerifyMany verifies a consecutive range starting at first.
	// proofs[i] belongs to batch first+i.
	SubmitVerifyMany(ctx context.Context, first uint64, proofs []BatchProofs) error
}

// InvalidProofError is returned when the contract identifies a specific
// prover type's proof as invalid. The submission driver deletes the
// offending record so a worker recomputes it.
type InvalidProofError struct {
	Batch  uint64
	Prover prover.Type
	Reason string
}

func (e *InvalidProofError) Error() string {
	return fmt.Sprintf("batch %d: invalid %s proof: %s", e.Batch, e.Prover, e.Reason)
}

// classifyRevert turns a revert reason into an InvalidProofError when it
// names a prover type, following the contract's "Invalid <TYPE> proof"
// error strings. The Tokamak verifier additionally reports failures as
// "Tokamak proof verification ...". Any other reason is returned as an
// opaque error.
func classifyRevert(batch uint64, reason string, err error) error {
	lowered := strings.ToLower(reason)
	for _, t := range prover.AllTypes() {
		if strings.Contains(lowered, fmt.Sprintf("invalid %s proof", t)) {
			return &InvalidProofError{Batch: batch, Prover: t, Reason: reason}
		}
	}
	if strings.Contains(lowered, "tokamak proof verification") {
		return &InvalidProofError{Batch: batch, Prover: prover.TypeTokamak, Reason: reason}
	}
	if reason != "" {
		return fmt.Errorf("settlement rejected batch %d: %s", batch, reason)
	}
	return fmt.Errorf("settlement rejected batch %d: %w", batch, err)
}
