/*

This file defines the interface boundary between the agent and the locker
contract. Components depend on Reader/Writer so unit tests can run against an
in-memory fake chain instead of a live network.

*/

package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neurallock/nla/internal/types"
)

var (
	ErrRPCConnection    = errors.New("chain: RPC connection failed")
	ErrRecordNotFound   = errors.New("chain: lock record not found")
	ErrReceiptTimeout   = errors.New("chain: timed out waiting for receipt")
	ErrTxReverted       = errors.New("chain: transaction reverted")
	ErrNoSigner         = errors.New("chain: no signer configured")
)

// AIAction is the typed payload for executeSignedAction calls. Amount carries
// the extension duration for ExtendLock actions, mirroring the contract.
type AIAction struct {
	LockID     uint64
	ActionType types.ActionType
	Amount     *big.Int
	StateHash  common.Hash
	Expiry     int64 // Unix seconds after which the signature is void
}

// StateUpdate is the fixed-point market state published on-chain for audit.
type StateUpdate struct {
	TVL            *big.Int // USD scaled by 1e8
	Volatility     *big.Int // Scaled by 1e4
	LiquidityDepth *big.Int // USD scaled by 1e8
	PriceImpact    *big.Int // volume/liquidity scaled by 1e4
	Health         types.HealthStatus
	Timestamp      int64 // observation time, unix milliseconds
}

// OnChainState is the latestMarketState view the contract exposes.
type OnChainState struct {
	TVL            *big.Int
	Volatility     *big.Int
	LiquidityDepth *big.Int
	PriceImpact    *big.Int
	Timestamp      int64
	Health         types.HealthStatus
}

// FeeData reports the current network fee situation.
type FeeData struct {
	GasPrice *big.Int // Wei
}

// GasPriceGwei returns the gas price converted to Gwei as a float.
func (f FeeData) GasPriceGwei() float64 {
	if f.GasPrice == nil {
		return 0
	}
	gwei, _ := new(big.Float).Quo(
		new(big.Float).SetInt(f.GasPrice),
		big.NewFloat(1e9),
	).Float64()
	return gwei
}

// Receipt is the confirmed result of a submitted transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	Status      uint64 // 1 = success
}

// Reader exposes all read-only contract and network state the agent needs.
type Reader interface {
	// LockCount returns the contract's lock id counter.
	LockCount(ctx context.Context) (uint64, error)

	// LockRecord reads a single lock record by index.
	LockRecord(ctx context.Context, id uint64) (types.LockRecord, error)

	// LatestMarketState reads the last published on-chain market state.
	LatestMarketState(ctx context.Context) (OnChainState, error)

	// FeeData resolves the current network gas price.
	FeeData(ctx context.Context) (FeeData, error)

	// TokenBalance returns the LP token balance of an address.
	TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error)

	// TokenAllowance returns the locker allowance granted by owner.
	TokenAllowance(ctx context.Context, owner common.Address) (*big.Int, error)

	// AINonce returns the per-signer action nonce tracked by the contract.
	AINonce(ctx context.Context, signer common.Address) (*big.Int, error)

	// ChainID returns the network chain id.
	ChainID(ctx context.Context) (*big.Int, error)
}

// Writer submits state-changing transactions to the locker and LP token.
type Writer interface {
	// SubmitApprove grants the locker an allowance on the LP token.
	SubmitApprove(ctx context.Context, amount *big.Int) (Receipt, error)

	// SubmitLock locks LP tokens directly.
	SubmitLock(ctx context.Context, amount *big.Int, lockType types.LockType, duration int64, conditionHash common.Hash) (Receipt, error)

	// SubmitAIAction submits a signed typed action to executeAIAction.
	SubmitAIAction(ctx context.Context, action AIAction, signature []byte) (Receipt, error)

	// SubmitStateUpdate publishes the fused state to updateMarketState.
	SubmitStateUpdate(ctx context.Context, update StateUpdate, signature []byte) (Receipt, error)
}

// Client combines read and write access to the locker deployment.
type Client interface {
	Reader
	Writer

	// Close releases the underlying RPC connection.
	Close()
}
