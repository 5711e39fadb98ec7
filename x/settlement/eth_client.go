package settlement

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

var _ Client = (*EthClient)(nil)

// backend is the slice of ethclient.Client the settlement client needs;
// kept narrow so tests can substitute a fake node.
type backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config holds the settlement layer connection parameters.
type Config struct {
	RPCEndpoint         string        `mapstructure:"rpc_endpoint"          yaml:"rpc_endpoint"`
	ContractAddress     string        `mapstructure:"contract_address"      yaml:"contract_address"`
	PrivateKeyHex       string        `mapstructure:"private_key_hex"       yaml:"private_key_hex"`
	ChainID             uint64        `mapstructure:"chain_id"              yaml:"chain_id"`
	GasLimitBufferPct   uint64        `mapstructure:"gas_limit_buffer_pct"  yaml:"gas_limit_buffer_pct"`
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout"       yaml:"receipt_timeout"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval" yaml:"receipt_poll_interval"`
}

// Validate checks the required connection parameters.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RPCEndpoint) == "" {
		return fmt.Errorf("settlement.rpc_endpoint is required")
	}
	if strings.TrimSpace(c.ContractAddress) == "" {
		return fmt.Errorf("settlement.contract_address is required")
	}
	if strings.TrimSpace(c.PrivateKeyHex) == "" {
		return fmt.Errorf("settlement.private_key_hex is required")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("settlement.chain_id is required")
	}
	return nil
}

// EthClient implements Client against the on-chain verifier contract.
// Submissions are simulated with eth_call first so that a revert reason
// (notably "Invalid <TYPE> proof") surfaces as a typed error before any
// gas is spent.
type EthClient struct {
	cfg     Config
	binding *VerifierBinding
	backend backend
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	log     zerolog.Logger
}

// NewEthClient dials the RPC endpoint and prepares the signer.
func NewEthClient(ctx context.Context, cfg Config, log zerolog.Logger) (*EthClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rpcClient, err := rpc.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial settlement RPC: %w", err)
	}
	return newEthClient(cfg, ethclient.NewClient(rpcClient), log)
}

func newEthClient(cfg Config, be backend, log zerolog.Logger) (*EthClient, error) {
	binding, err := NewVerifierBinding(cfg.ContractAddress)
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid settlement private key: %w", err)
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = 2 * time.Second
	}
	if cfg.GasLimitBufferPct == 0 {
		cfg.GasLimitBufferPct = 15
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	log = log.With().Str("component", "settlement").Logger()
	log.Info().
		Str("contract", binding.Address().Hex()).
		Str("from", from.Hex()).
		Uint64("chain_id", cfg.ChainID).
		Msg("Settlement client initialized")

	return &EthClient{
		cfg:     cfg,
		binding: binding,
		backend: be,
		key:     key,
		from:    from,
		chainID: new(big.Int).SetUint64(cfg.ChainID),
		log:     log,
	}, nil
}

func (c *EthClient) LastVerifiedBatch(ctx context.Context) (uint64, error) {
	calldata, err := c.binding.PackLastVerifiedBatch()
	if err != nil {
		return 0, fmt.Errorf("failed to pack lastVerifiedBatch call: %w", err)
	}
	return c.readCounter(ctx, "lastVerifiedBatch", calldata)
}

func (c *EthClient) LastCommittedBatch(ctx context.Context) (uint64, error) {
	calldata, err := c.binding.PackLastCommittedBatch()
	if err != nil {
		return 0, fmt.Errorf("failed to pack lastCommittedBatch call: %w", err)
	}
	return c.readCounter(ctx, "lastCommittedBatch", calldata)
}

func (c *EthClient) readCounter(ctx context.Context, method string, calldata []byte) (uint64, error) {
	to := c.binding.Address()
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: calldata}, nil)
	if err != nil {
		return 0, fmt.Errorf("%s call failed: %w", method, err)
	}
	return c.binding.UnpackBatchCounter(method, out)
}

func (c *EthClient) SubmitVerifySingle(ctx context.Context, batch uint64, proofs BatchProofs) error {
	calldata, err := c.binding.PackVerifyBatch(batch, proofs)
	if err != nil {
		return err
	}
	c.log.Info().Uint64("batch", batch).Msg("Submitting single-batch verification")
	return c.submit(ctx, batch, calldata)
}

func (c *EthClient) SubmitVerifyMany(ctx context.Context, first uint64, proofs []BatchProofs) error {
	calldata, err := c.binding.PackVerifyBatches(first, proofs)
	if err != nil {
		return err
	}
	c.log.Info().
		Uint64("first_batch", first).
		Int("batches", len(proofs)).
		Msg("Submitting multi-batch verification")
	return c.submit(ctx, first, calldata)
}

// submit simulates, signs, sends, and waits for inclusion of one
// verification transaction.
func (c *EthClient) submit(ctx context.Context, batch uint64, calldata []byte) error {
	to := c.binding.Address()
	msg := ethereum.CallMsg{From: c.from, To: &to, Data: calldata}

	if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
		return classifyRevert(batch, revertReason(err), err)
	}

	gasLimit, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return classifyRevert(batch, revertReason(err), err)
	}
	gasLimit += gasLimit * c.cfg.GasLimitBufferPct / 100

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return fmt.Errorf("failed to fetch nonce: %w", err)
	}
	tipCap, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch gas tip cap: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch chain head: %w", err)
	}

	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	tx, err := types.SignNewTx(c.key, types.LatestSignerForChainID(c.chainID), &types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Data:      calldata,
	})
	if err != nil {
		return fmt.Errorf("failed to sign verification transaction: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return classifyRevert(batch, revertReason(err), err)
	}

	c.log.Info().
		Uint64("batch", batch).
		Str("tx_hash", tx.Hash().Hex()).
		Uint64("gas_limit", gasLimit).
		Msg("Verification transaction sent")

	return c.waitMined(ctx, batch, tx.Hash())
}

func (c *EthClient) waitMined(ctx context.Context, batch uint64, txHash common.Hash) error {
	deadline := time.NewTimer(c.cfg.ReceiptTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return fmt.Errorf("verification transaction %s reverted on-chain", txHash.Hex())
			}
			c.log.Info().
				Uint64("batch", batch).
				Str("tx_hash", txHash.Hex()).
				Uint64("gas_used", receipt.GasUsed).
				Msg("Verification transaction mined")
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("failed to fetch receipt for %s: %w", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for receipt of %s", txHash.Hex())
		case <-ticker.C:
		}
	}
}

// revertReason extracts a human-readable revert reason from an RPC error,
// either from the structured error data or from the message text.
func revertReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if raw, decodeErr := hexutil.Decode(hexData); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return reason
				}
			}
		}
	}
	if _, after, ok := strings.Cut(err.Error(), "execution reverted:"); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
