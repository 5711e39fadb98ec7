package settlement

import (
	_ "embed"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/proof-orchestrator/x/prover"
)

// On-chain verifier ABI JSON embedded at compile time
//
//go:embed abi/on_chain_verifier.json
var onChainVerifierABIJSON string

// VerifierBinding encapsulates the verifier contract address and ABI for
// encoding lastVerifiedBatch / lastCommittedBatch view calls and
// verifyBatch / verifyBatches submissions.
type VerifierBinding struct {
	address common.Address
	abi     abi.ABI
}

// NewVerifierBinding parses the embedded ABI and validates the contract
// address.
func NewVerifierBinding(contractAddr string) (*VerifierBinding, error) {
	if strings.TrimSpace(contractAddr) == "" {
		return nil, fmt.Errorf("contract address cannot be empty")
	}
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddr)
	}

	parsedABI, err := abi.JSON(strings.NewReader(onChainVerifierABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	return &VerifierBinding{
		address: common.HexToAddress(contractAddr),
		abi:     parsedABI,
	}, nil
}

// Address returns the verifier contract address.
func (b *VerifierBinding) Address() common.Address {
	return b.address
}

// ABI returns the parsed verifier ABI.
func (b *VerifierBinding) ABI() abi.ABI {
	return b.abi
}

// PackLastVerifiedBatch encodes the lastVerifiedBatch() view call.
func (b *VerifierBinding) PackLastVerifiedBatch() ([]byte, error) {
	return b.abi.Pack("lastVerifiedBatch")
}

// PackLastCommittedBatch encodes the lastCommittedBatch() view call.
func (b *VerifierBinding) PackLastCommittedBatch() ([]byte, error) {
	return b.abi.Pack("lastCommittedBatch")
}

// UnpackBatchCounter decodes the uint256 returned by either counter call.
func (b *VerifierBinding) UnpackBatchCounter(method string, data []byte) (uint64, error) {
	values, err := b.abi.Unpack(method, data)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("unexpected %s result arity %d", method, len(values))
	}
	counter, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected %s result type %T", method, values[0])
	}
	if !counter.IsUint64() {
		return 0, fmt.Errorf("%s result out of uint64 range", method)
	}
	return counter.Uint64(), nil
}

// PackVerifyBatch encodes verifyBatch(batchNumber, proofs...) calldata.
// Prover types absent from proofs are encoded as empty bytes.
func (b *VerifierBinding) PackVerifyBatch(batch uint64, proofs BatchProofs) ([]byte, error) {
	args := make([]interface{}, 0, 1+len(prover.AllTypes()))
	args = append(args, new(big.Int).SetUint64(batch))
	for _, t := range prover.AllTypes() {
		args = append(args, proofBytesOrEmpty(proofs, t))
	}

	data, err := b.abi.Pack("verifyBatch", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack verifyBatch calldata: %w", err)
	}
	return data, nil
}

// PackVerifyBatches encodes verifyBatches(firstBatchNumber, proofs...) for
// a consecutive range; proofs[i] belongs to batch first+i.
func (b *VerifierBinding) PackVerifyBatches(first uint64, proofs []BatchProofs) ([]byte, error) {
	if len(proofs) == 0 {
		return nil, fmt.Errorf("empty batch range")
	}

	args := make([]interface{}, 0, 1+len(prover.AllTypes()))
	args = append(args, new(big.Int).SetUint64(first))
	for _, t := range prover.AllTypes() {
		perBatch := make([][]byte, len(proofs))
		for i, batchProofs := range proofs {
			perBatch[i] = proofBytesOrEmpty(batchProofs, t)
		}
		args = append(args, perBatch)
	}

	data, err := b.abi.Pack("verifyBatches", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack verifyBatches calldata: %w", err)
	}
	return data, nil
}

func proofBytesOrEmpty(proofs BatchProofs, t prover.Type) []byte {
	if p, ok := proofs[t]; ok && len(p) > 0 {
		return p
	}
	return []byte{}
}
