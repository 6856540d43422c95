/*

This file contains the decision engine. It turns a fused state into a single
clamped decision per cycle. Hard gates (cooldown, gas price) are evaluated
before the oracle is consulted at all, every oracle response is treated as
untrusted and strictly validated, and each validated proposal passes through
the constraint clamp before it is returned. Every failure mode degrades to an
explicit HOLD rather than an error: the caller always gets a decision.

*/

package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/neurallock/nla/internal/logger"
	"github.com/neurallock/nla/internal/types"
)

// proposal is the raw oracle response contract. Pointer fields distinguish
// "absent" from zero values during validation.
type proposal struct {
	Action     string   `json:"action"`
	LockID     *uint64  `json:"lockId"`
	Amount     *string  `json:"amount"`
	Duration   *int64   `json:"duration"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	RiskLevel  string   `json:"riskLevel"`
}

// Engine gates, consults and clamps. It is safe for concurrent use, though
// the agent drives it from a single cycle goroutine.
type Engine struct {
	oracle Oracle

	mu             sync.RWMutex
	constraints    types.ConstraintConfig
	lastActionTime time.Time

	now    func() time.Time
	logger zerolog.Logger
}

// NewEngine creates a decision engine with the given oracle and constraints.
func NewEngine(oracle Oracle, constraints types.ConstraintConfig) (*Engine, error) {
	if oracle == nil {
		return nil, fmt.Errorf("policy: oracle is required")
	}
	if constraints.MaxUnlockRatio <= 0 || constraints.MaxUnlockRatio > 1 {
		return nil, fmt.Errorf("policy: max unlock ratio %f out of range (0, 1]", constraints.MaxUnlockRatio)
	}
	if constraints.MinLockDuration <= 0 {
		return nil, fmt.Errorf("policy: min lock duration must be positive")
	}
	if constraints.MaxGasPriceGwei <= 0 {
		return nil, fmt.Errorf("policy: max gas price must be positive")
	}

	return &Engine{
		oracle:      oracle,
		constraints: constraints,
		now:         time.Now,
		logger:      logger.GetForComponent("policy_engine"),
	}, nil
}

// Constraints returns the active constraint configuration.
func (e *Engine) Constraints() types.ConstraintConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.constraints
}

// UpdateConstraints replaces the active constraint configuration. The new
// configuration applies from the next Decide call.
func (e *Engine) UpdateConstraints(constraints types.ConstraintConfig) {
	e.mu.Lock()
	e.constraints = constraints
	e.mu.Unlock()
	e.logger.Info().
		Float64("max_unlock_ratio", constraints.MaxUnlockRatio).
		Dur("min_lock_duration", constraints.MinLockDuration).
		Float64("max_gas_price_gwei", constraints.MaxGasPriceGwei).
		Str("emergency_threshold", constraints.EmergencyThreshold.String()).
		Dur("cooldown", constraints.Cooldown).
		Msg("Constraint configuration updated")
}

// Decide produces exactly one decision for the cycle. It never returns an
// error: gate trips, oracle failures and malformed responses all come back
// as HOLD decisions whose reasoning names the cause.
func (e *Engine) Decide(ctx context.Context, state types.FusedState, activeLocks []types.LockRecord) types.Decision {
	constraints := e.Constraints()

	// Cooldown gate. The oracle is never consulted while cooling down.
	e.mu.RLock()
	lastAction := e.lastActionTime
	e.mu.RUnlock()
	if elapsed := e.now().Sub(lastAction); !lastAction.IsZero() && elapsed < constraints.Cooldown {
		remaining := constraints.Cooldown - elapsed
		e.logger.Debug().Dur("remaining", remaining).Msg("Cooldown active, holding")
		return holdDecision(fmt.Sprintf("cooldown active, %s remaining", remaining.Round(time.Second)))
	}

	// Gas gate. Fees above the ceiling make any action uneconomical.
	if state.Health.GasPriceGwei > constraints.MaxGasPriceGwei {
		e.logger.Info().
			Float64("gas_price_gwei", state.Health.GasPriceGwei).
			Float64("max_gas_price_gwei", constraints.MaxGasPriceGwei).
			Msg("Gas price above ceiling, holding")
		return holdDecision(fmt.Sprintf("gas price %.2f gwei exceeds ceiling %.2f gwei",
			state.Health.GasPriceGwei, constraints.MaxGasPriceGwei))
	}

	raw, err := e.oracle.Propose(ctx, systemPrompt, buildUserPrompt(state, activeLocks, constraints))
	if err != nil {
		e.logger.Error().Err(err).Msg("Oracle call failed")
		return holdDecision(fmt.Sprintf("oracle unavailable: %v", err))
	}

	decision, err := e.decodeProposal(raw)
	if err != nil {
		e.logger.Warn().Err(err).Str("raw", truncate(raw, 400)).Msg("Rejected oracle proposal")
		return holdDecision(fmt.Sprintf("invalid oracle proposal: %v", err))
	}

	decision = e.applyConstraints(decision, state, constraints)

	if !decision.IsHold() {
		e.mu.Lock()
		e.lastActionTime = e.now()
		e.mu.Unlock()
	}

	e.logger.Info().
		Str("action", decision.Action.String()).
		Float64("confidence", decision.Confidence).
		Str("risk", decision.RiskAssessment).
		Msg("Decision produced")

	return decision
}

// decodeProposal strictly validates the oracle response. Any missing or
// out-of-range field rejects the whole proposal.
func (e *Engine) decodeProposal(raw string) (types.Decision, error) {
	var p proposal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return types.Decision{}, fmt.Errorf("malformed JSON: %w", err)
	}

	action, err := parseActionName(p.Action)
	if err != nil {
		return types.Decision{}, err
	}

	if p.Confidence == nil {
		return types.Decision{}, fmt.Errorf("confidence is missing")
	}
	if *p.Confidence < 0 || *p.Confidence > 1 {
		return types.Decision{}, fmt.Errorf("confidence %f out of range [0, 1]", *p.Confidence)
	}

	decision := types.Decision{
		Action:         action,
		LockID:         p.LockID,
		Confidence:     *p.Confidence,
		Reasoning:      p.Reasoning,
		RiskAssessment: normalizeRiskLevel(p.RiskLevel),
	}

	if p.Duration != nil {
		if *p.Duration < 0 {
			return types.Decision{}, fmt.Errorf("duration %d is negative", *p.Duration)
		}
		decision.Duration = *p.Duration
	}

	if p.Amount != nil && *p.Amount != "" {
		amount, ok := new(big.Int).SetString(*p.Amount, 10)
		if !ok {
			return types.Decision{}, fmt.Errorf("amount %q is not a decimal integer", *p.Amount)
		}
		if amount.Sign() < 0 {
			return types.Decision{}, fmt.Errorf("amount %q is negative", *p.Amount)
		}
		decision.Amount = amount
	}

	// Per-action field requirements.
	switch action {
	case types.ActionUnlock, types.ActionEmergencyUnlock, types.ActionExtendLock, types.ActionModifyAmount:
		if decision.LockID == nil {
			return types.Decision{}, fmt.Errorf("%s requires lockId", action)
		}
	}
	switch action {
	case types.ActionLock, types.ActionModifyAmount:
		if decision.Amount == nil || decision.Amount.Sign() == 0 {
			return types.Decision{}, fmt.Errorf("%s requires a positive amount", action)
		}
	}

	return decision, nil
}

func holdDecision(reason string) types.Decision {
	return types.Decision{
		Action:         types.ActionHold,
		Confidence:     1.0,
		Reasoning:      "HOLD: " + reason,
		Constraints:    []string{"Automatic HOLD decision"},
		RiskAssessment: "LOW",
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
