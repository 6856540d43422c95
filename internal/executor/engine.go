/*

This file contains the execution engine. It is the only component that turns
decisions into transactions: routing by action type, the approve-then-lock
flow for direct locks, and the signed typed-data path for AI actions. Every
failure is absorbed into an ExecutionResult so one bad transaction never
takes the cycle loop down.

*/

package executor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/neurallock/nla/internal/chain"
	"github.com/neurallock/nla/internal/logger"
	"github.com/neurallock/nla/internal/types"
	"github.com/neurallock/nla/internal/utils"
)

const (
	// DefaultLockDuration applies when a lock decision carries no duration.
	DefaultLockDuration = 30 * 24 * time.Hour

	// ActionExpiry bounds how long a signed action stays valid.
	ActionExpiry = time.Hour
	// EmergencyActionExpiry is the tighter window for emergency unlocks.
	EmergencyActionExpiry = 5 * time.Minute
)

// maxUint256 is the unlimited ERC20 allowance.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Engine executes clamped decisions against the locker deployment.
type Engine struct {
	client  chain.Client
	signer  chain.Signer
	locker  common.Address
	chainID *big.Int
	logger  zerolog.Logger
}

// NewEngine resolves the chain id once and wires the execution path.
func NewEngine(ctx context.Context, client chain.Client, signer chain.Signer, locker common.Address) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("executor: chain client is required")
	}
	if signer == nil {
		return nil, chain.ErrNoSigner
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("executor: failed to resolve chain id: %w", err)
	}

	return &Engine{
		client:  client,
		signer:  signer,
		locker:  locker,
		chainID: chainID,
		logger:  logger.GetForComponent("executor"),
	}, nil
}

// Execute submits one decision. The returned result always reflects what
// happened; a false Success with a populated Error is the failure signal.
func (e *Engine) Execute(ctx context.Context, decision types.Decision, state types.FusedState) types.ExecutionResult {
	if decision.IsHold() {
		return failure(state, "hold decisions are not executable")
	}

	e.logger.Info().
		Str("action", decision.Action.String()).
		Str("state_hash", state.StateHash.Hex()).
		Msg("Executing decision")

	var result types.ExecutionResult
	switch decision.Action {
	case types.ActionLock:
		result = e.executeLock(ctx, decision, state)
	case types.ActionUnlock, types.ActionExtendLock, types.ActionModifyAmount, types.ActionEmergencyUnlock:
		result = e.executeAIAction(ctx, decision, state)
	default:
		result = failure(state, fmt.Sprintf("unsupported action %s", decision.Action))
	}

	if result.Success {
		e.logger.Info().
			Str("action", decision.Action.String()).
			Str("tx_hash", result.TxHash).
			Uint64("gas_used", result.GasUsed).
			Msg("Decision executed")
	} else {
		e.logger.Error().
			Str("action", decision.Action.String()).
			Str("error", result.Error).
			Msg("Execution failed")
	}

	return result
}

// executeLock runs the direct lock flow: balance check, allowance top-up when
// short, then the lock call itself.
func (e *Engine) executeLock(ctx context.Context, decision types.Decision, state types.FusedState) types.ExecutionResult {
	if decision.Amount == nil || decision.Amount.Sign() <= 0 {
		return failure(state, "lock requires a positive amount")
	}

	balance, err := e.client.TokenBalance(ctx, e.signer.Address())
	if err != nil {
		return failure(state, fmt.Sprintf("failed to read LP balance: %v", err))
	}
	if balance.Cmp(decision.Amount) < 0 {
		return failure(state, fmt.Sprintf("insufficient LP balance: have %s, need %s",
			balance.String(), decision.Amount.String()))
	}

	allowance, err := e.client.TokenAllowance(ctx, e.signer.Address())
	if err != nil {
		return failure(state, fmt.Sprintf("failed to read LP allowance: %v", err))
	}
	if allowance.Cmp(decision.Amount) < 0 {
		e.logger.Info().Msg("Allowance short, approving locker")
		if _, err := e.client.SubmitApprove(ctx, maxUint256); err != nil {
			return failure(state, fmt.Sprintf("approve failed: %v", err))
		}
	}

	duration := decision.Duration
	if duration <= 0 {
		duration = int64(DefaultLockDuration.Seconds())
	}

	receipt, err := e.client.SubmitLock(ctx, decision.Amount, types.LockTypeTimeLocked, duration, common.Hash{})
	if err != nil {
		return failure(state, fmt.Sprintf("lock failed: %v", err))
	}

	return success(receipt, state)
}

// executeAIAction signs a typed action over the current state hash and a
// fresh contract nonce, then submits it to executeAIAction.
func (e *Engine) executeAIAction(ctx context.Context, decision types.Decision, state types.FusedState) types.ExecutionResult {
	if decision.LockID == nil {
		return failure(state, fmt.Sprintf("%s requires a lock id", decision.Action))
	}

	nonce, err := e.client.AINonce(ctx, e.signer.Address())
	if err != nil {
		return failure(state, fmt.Sprintf("failed to read action nonce: %v", err))
	}

	expiry := ActionExpiry
	if decision.Action == types.ActionEmergencyUnlock {
		expiry = EmergencyActionExpiry
	}

	amount := decision.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	if decision.Action == types.ActionExtendLock {
		// The contract reads the extension duration from the amount slot.
		amount = big.NewInt(decision.Duration)
	}

	action := chain.AIAction{
		LockID:     *decision.LockID,
		ActionType: decision.Action,
		Amount:     amount,
		StateHash:  state.StateHash,
		Expiry:     time.Now().Add(expiry).Unix(),
	}

	signature, err := e.signer.SignTypedData(actionTypedData(e.chainID, e.locker, action, nonce))
	if err != nil {
		return failure(state, fmt.Sprintf("failed to sign action: %v", err))
	}

	receipt, err := e.client.SubmitAIAction(ctx, action, signature)
	if err != nil {
		return failure(state, fmt.Sprintf("action submission failed: %v", err))
	}

	return success(receipt, state)
}

// PublishState pushes the fused state to the contract's market state record
// with a signed digest for auditability.
func (e *Engine) PublishState(ctx context.Context, state types.FusedState) error {
	update, err := buildStateUpdate(state)
	if err != nil {
		return fmt.Errorf("failed to convert state: %w", err)
	}

	signature, err := e.signer.SignMessage(stateUpdateDigest(update))
	if err != nil {
		return fmt.Errorf("failed to sign state update: %w", err)
	}

	receipt, err := e.client.SubmitStateUpdate(ctx, update, signature)
	if err != nil {
		return fmt.Errorf("state update submission failed: %w", err)
	}

	e.logger.Info().
		Str("tx_hash", receipt.TxHash).
		Str("health", update.Health.String()).
		Msg("Market state published")

	return nil
}

// buildStateUpdate converts the fused float metrics into the contract's
// fixed-point representation.
func buildStateUpdate(state types.FusedState) (chain.StateUpdate, error) {
	tvl, err := utils.Float64ToFixed(state.Health.TVL, 8)
	if err != nil {
		return chain.StateUpdate{}, fmt.Errorf("tvl: %w", err)
	}
	volatility, err := utils.Float64ToFixed(state.Health.Volatility, 4)
	if err != nil {
		return chain.StateUpdate{}, fmt.Errorf("volatility: %w", err)
	}
	liquidityDepth, err := utils.Float64ToFixed(state.Market.Liquidity, 8)
	if err != nil {
		return chain.StateUpdate{}, fmt.Errorf("liquidity depth: %w", err)
	}

	priceImpact := 0.0
	if state.Market.Liquidity > 0 {
		priceImpact = state.Market.Volume24h / state.Market.Liquidity
	}
	impact, err := utils.Float64ToFixed(priceImpact, 4)
	if err != nil {
		return chain.StateUpdate{}, fmt.Errorf("price impact: %w", err)
	}

	return chain.StateUpdate{
		TVL:            tvl,
		Volatility:     volatility,
		LiquidityDepth: liquidityDepth,
		PriceImpact:    impact,
		Health:         state.HealthStatus,
		Timestamp:      state.Timestamp.UnixMilli(),
	}, nil
}

func success(receipt chain.Receipt, state types.FusedState) types.ExecutionResult {
	return types.ExecutionResult{
		Success:     true,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
		StateProof:  state.StateHash.Hex(),
	}
}

func failure(state types.FusedState, message string) types.ExecutionResult {
	return types.ExecutionResult{
		Success:    false,
		Error:      message,
		StateProof: state.StateHash.Hex(),
	}
}
