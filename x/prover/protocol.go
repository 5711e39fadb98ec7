package prover

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MessageKind discriminates the payload carried by a protocol Message.
type MessageKind string

const (
	KindBatchRequest     MessageKind = "batch_request"
	KindBatchAssigned    MessageKind = "batch_assigned"
	KindNoWork           MessageKind = "no_work"
	KindVersionMismatch  MessageKind = "version_mismatch"
	KindProverTypeUnused MessageKind = "prover_type_not_needed"
	KindProofSubmit      MessageKind = "proof_submit"
	KindAck              MessageKind = "ack"
	KindError            MessageKind = "error"
)

// Message is the envelope exchanged between a prover worker and the
// coordinator. Exactly one payload field is set, selected by Type.
type Message struct {
	Type MessageKind `json:"type"`

	BatchRequest  *BatchRequest  `json:"batch_request,omitempty"`
	BatchAssigned *BatchAssigned `json:"batch_assigned,omitempty"`
	ProofSubmit   *ProofSubmit   `json:"proof_submit,omitempty"`
	Ack           *Ack           `json:"ack,omitempty"`
	Error         *Error         `json:"error,omitempty"`
}

// BatchRequest asks the coordinator for the next batch this prover type
// should work on. CommitHash identifies the worker's build so the
// coordinator can reject stale binaries.
type BatchRequest struct {
	ProverType Type   `json:"prover_type"`
	CommitHash string `json:"commit_hash,omitempty"`
}

// BatchAssigned hands a batch and its proving input to a worker.
type BatchAssigned struct {
	BatchNumber uint64        `json:"batch_number"`
	Input       hexutil.Bytes `json:"input"`
}

// ProofSubmit delivers a finished proof. Duplicate submissions for a key
// already stored are acknowledged and discarded.
type ProofSubmit struct {
	BatchNumber uint64        `json:"batch_number"`
	ProverType  Type          `json:"prover_type"`
	Proof       hexutil.Bytes `json:"proof"`
}

// Ack confirms a ProofSubmit was accepted (or was a harmless duplicate).
type Ack struct {
	BatchNumber uint64 `json:"batch_number"`
}

// Error reports a malformed or unserviceable request before the
// connection is closed.
type Error struct {
	Message string `json:"message"`
}

// Validate checks that the envelope carries the payload its Type claims.
func (m *Message) Validate() error {
	switch m.Type {
	case KindBatchRequest:
		if m.BatchRequest == nil {
			return fmt.Errorf("%s message missing payload", m.Type)
		}
	case KindBatchAssigned:
		if m.BatchAssigned == nil {
			return fmt.Errorf("%s message missing payload", m.Type)
		}
	case KindProofSubmit:
		if m.ProofSubmit == nil {
			return fmt.Errorf("%s message missing payload", m.Type)
		}
		if len(m.ProofSubmit.Proof) == 0 {
			return fmt.Errorf("proof_submit carries empty proof")
		}
	case KindAck:
		if m.Ack == nil {
			return fmt.Errorf("%s message missing payload", m.Type)
		}
	case KindNoWork, KindVersionMismatch, KindProverTypeUnused:
		// No payload.
	case KindError:
		if m.Error == nil {
			return fmt.Errorf("%s message missing payload", m.Type)
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

// NewBatchRequest builds a batch_request envelope.
func NewBatchRequest(t Type, commitHash string) *Message {
	return &Message{
		Type:         KindBatchRequest,
		BatchRequest: &BatchRequest{ProverType: t, CommitHash: commitHash},
	}
}

// NewBatchAssigned builds a batch_assigned envelope.
func NewBatchAssigned(batch uint64, input []byte) *Message {
	return &Message{
		Type:          KindBatchAssigned,
		BatchAssigned: &BatchAssigned{BatchNumber: batch, Input: input},
	}
}

// NewProofSubmit builds a proof_submit envelope.
func NewProofSubmit(batch uint64, t Type, proof []byte) *Message {
	return &Message{
		Type:        KindProofSubmit,
		ProofSubmit: &ProofSubmit{BatchNumber: batch, ProverType: t, Proof: proof},
	}
}

// NewAck builds an ack envelope for the given batch.
func NewAck(batch uint64) *Message {
	return &Message{Type: KindAck, Ack: &Ack{BatchNumber: batch}}
}

// NewError builds an error envelope.
func NewError(msg string) *Message {
	return &Message{Type: KindError, Error: &Error{Message: msg}}
}
