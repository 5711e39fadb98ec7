package proofstore

import (
	"context"

	"github.com/compose-network/proof-orchestrator/x/prover"
)

// Key addresses a single proof record.
type Key struct {
	Batch  uint64
	Prover prover.Type
}

// Store is the durable mapping from (batch number, prover type) to proof
// bytes shared by the coordinator (writer) and the submission driver
// (reader/pruner). Writes are idempotent: a Put for a key that already
// holds a value is a no-op, which is what makes late or duplicate worker
// submissions harmless. Records are never partially written.
type Store interface {
	// Get returns the stored proof for the key, if present.
	Get(ctx context.Context, batch uint64, t prover.Type) ([]byte, bool, error)

	// Put stores a proof. If the key already holds a value the call
	// succeeds without modifying the existing record.
	Put(ctx context.Context, batch uint64, t prover.Type, proof []byte) error

	// Delete removes a record. Used only to prune proofs the settlement
	// layer rejected as invalid. Deleting an absent key is not an error.
	Delete(ctx context.Context, batch uint64, t prover.Type) error

	// Keys lists every stored key, in no particular order.
	Keys(ctx context.Context) ([]Key, error)
}

// Pruner is implemented by stores that can discard records for batches
// that have already been verified on-chain.
type Pruner interface {
	// PruneBelow deletes every record with a batch number strictly below
	// the given bound and returns how many were removed.
	PruneBelow(ctx context.Context, batch uint64) (int, error)
}

// HasAll reports whether the store holds a proof for every required type
// of the given batch.
func HasAll(ctx context.Context, s Store, batch uint64, required []prover.Type) (bool, error) {
	for _, t := range required {
		_, ok, err := s.Get(ctx, batch, t)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
