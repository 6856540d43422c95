package policy

import (
	"fmt"
	"math/big"

	"github.com/neurallock/nla/internal/types"
	"github.com/neurallock/nla/internal/utils"
)

// applyConstraints clamps a validated proposal into the safety envelope. It
// never rejects an action outright; it shrinks, downgrades or floors it and
// records every adjustment in the decision's constraint audit trail.
func (e *Engine) applyConstraints(decision types.Decision, state types.FusedState, constraints types.ConstraintConfig) types.Decision {
	switch decision.Action {
	case types.ActionUnlock, types.ActionEmergencyUnlock:
		decision = e.clampUnlockAmount(decision, state, constraints)
	}

	// EmergencyUnlock is reserved for states at or beyond the threshold.
	if decision.Action == types.ActionEmergencyUnlock && state.HealthStatus < constraints.EmergencyThreshold {
		e.logger.Warn().
			Str("health_status", state.HealthStatus.String()).
			Str("emergency_threshold", constraints.EmergencyThreshold.String()).
			Msg("Downgraded emergency unlock to regular unlock")
		decision.Action = types.ActionUnlock
		decision.Constraints = append(decision.Constraints,
			fmt.Sprintf("Downgraded EMERGENCY_UNLOCK: health %s below threshold %s",
				state.HealthStatus, constraints.EmergencyThreshold))
	}

	switch decision.Action {
	case types.ActionLock, types.ActionExtendLock:
		minSeconds := int64(constraints.MinLockDuration.Seconds())
		if decision.Duration < minSeconds {
			decision.Duration = minSeconds
			decision.Constraints = append(decision.Constraints,
				fmt.Sprintf("Raised duration to minimum %d seconds", minSeconds))
		}
	}

	decision.Constraints = append(decision.Constraints,
		fmt.Sprintf("Gas price %.2f gwei within ceiling %.2f gwei",
			state.Health.GasPriceGwei, constraints.MaxGasPriceGwei))

	return decision
}

// clampUnlockAmount caps the unlocked amount at MaxUnlockRatio of the total
// locked supply. A nil amount (unlocking a whole lock) passes through; the
// executor resolves it against the lock record.
func (e *Engine) clampUnlockAmount(decision types.Decision, state types.FusedState, constraints types.ConstraintConfig) types.Decision {
	if decision.Amount == nil || state.Modular.TotalLocked == nil || state.Modular.TotalLocked.Sign() == 0 {
		return decision
	}

	maxAmount, err := utils.RatioOf(state.Modular.TotalLocked, constraints.MaxUnlockRatio)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to compute unlock cap, zeroing amount")
		decision.Amount = new(big.Int)
		decision.Constraints = append(decision.Constraints, "Unlock amount zeroed: cap computation failed")
		return decision
	}

	if decision.Amount.Cmp(maxAmount) > 0 {
		e.logger.Info().
			Str("proposed", decision.Amount.String()).
			Str("cap", maxAmount.String()).
			Msg("Clamped unlock amount to ratio cap")
		decision.Amount = maxAmount
		decision.Constraints = append(decision.Constraints,
			fmt.Sprintf("Clamped unlock amount to %.0f%% of total locked", constraints.MaxUnlockRatio*100))
	}

	return decision
}
