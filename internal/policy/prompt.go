package policy

import (
	"fmt"
	"strings"

	"github.com/neurallock/nla/internal/types"
)

const systemPrompt = `You are an autonomous agent managing LP token locks in a DeFi protocol.
Your goal is to protect liquidity providers while maintaining protocol health.

You can take the following actions:
- LOCK: Lock additional LP tokens (specify amount and duration in seconds)
- UNLOCK: Unlock a specific lock (specify lockId)
- EXTEND_LOCK: Extend the duration of a lock (specify lockId and additional duration in seconds)
- MODIFY_AMOUNT: Change the locked amount of a lock (specify lockId and new amount)
- EMERGENCY_UNLOCK: Immediately unlock a lock during a crisis (specify lockId)
- HOLD: Take no action this cycle

Guidelines:
- Prefer HOLD unless the state clearly calls for intervention
- Use EMERGENCY_UNLOCK only when protocol health is EMERGENCY
- Unlocking reduces protocol stability; lock extensions increase it
- Keep confidence honest: report low confidence when signals conflict

Respond with a single JSON object, no other text:
{
  "action": "LOCK" | "UNLOCK" | "EXTEND_LOCK" | "MODIFY_AMOUNT" | "EMERGENCY_UNLOCK" | "HOLD",
  "lockId": <number or null>,
  "amount": "<wei amount as decimal string, or null>",
  "duration": <seconds as number, or null>,
  "confidence": <number between 0 and 1>,
  "reasoning": "<one or two sentences>",
  "riskLevel": "LOW" | "MEDIUM" | "HIGH" | "CRITICAL"
}`

// buildUserPrompt renders the fused state, the active lock set and the
// constraint envelope into the textual description the oracle reasons over.
// The constraints are included so proposals land inside the clamp instead of
// being corrected after the fact.
func buildUserPrompt(state types.FusedState, activeLocks []types.LockRecord, constraints types.ConstraintConfig) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Current protocol state (status: %s):\n\n", state.HealthStatus)

	fmt.Fprintf(&b, "Market:\n")
	fmt.Fprintf(&b, "- LP token price: $%.6f (24h change: %.2f%%)\n", state.Market.Price, state.Market.Price24hChange)
	fmt.Fprintf(&b, "- 24h volume: $%.2f\n", state.Market.Volume24h)
	fmt.Fprintf(&b, "- Pool liquidity: $%.2f\n", state.Market.Liquidity)
	fmt.Fprintf(&b, "- Buy pressure: %.2f, sell pressure: %.2f\n\n", state.Market.BuyPressure, state.Market.SellPressure)

	fmt.Fprintf(&b, "Locks:\n")
	fmt.Fprintf(&b, "- Total locked: %s wei across %d active locks\n", totalLockedString(state), state.Modular.ActiveLocks)
	fmt.Fprintf(&b, "- Average lock duration: %.0f seconds\n", state.Modular.AvgLockDuration)
	fmt.Fprintf(&b, "- Recent unlocks (24h): %d, pending unlocks (7d): %d\n\n", state.Modular.RecentUnlocks, state.Modular.PendingUnlocks)

	fmt.Fprintf(&b, "Health:\n")
	fmt.Fprintf(&b, "- TVL: $%.2f\n", state.Health.TVL)
	fmt.Fprintf(&b, "- Volatility: %.4f\n", state.Health.Volatility)
	fmt.Fprintf(&b, "- Liquidity ratio: %.4f\n", state.Health.LiquidityRatio)
	fmt.Fprintf(&b, "- Concentration risk: %.2f\n", state.Health.ConcentrationRisk)
	fmt.Fprintf(&b, "- Gas price: %.2f gwei (network congestion: %.2f)\n\n", state.Health.GasPriceGwei, state.Health.NetworkCongestion)

	if len(activeLocks) == 0 {
		fmt.Fprintf(&b, "No active locks.\n")
	} else {
		fmt.Fprintf(&b, "Active locks:\n")
		for _, lock := range activeLocks {
			fmt.Fprintf(&b, "- Lock #%d: %s wei, type %s, locked until unix %d\n",
				lock.ID, lock.Amount.String(), lock.LockType, lock.UnlockTime)
		}
	}

	fmt.Fprintf(&b, "\nConstraints:\n")
	fmt.Fprintf(&b, "- Max unlock ratio: %.0f%% of total locked per action\n", constraints.MaxUnlockRatio*100)
	fmt.Fprintf(&b, "- Min lock duration: %.0f seconds\n", constraints.MinLockDuration.Seconds())
	fmt.Fprintf(&b, "- Max gas price: %.2f gwei\n", constraints.MaxGasPriceGwei)
	fmt.Fprintf(&b, "- Emergency threshold: %s\n", constraints.EmergencyThreshold)

	fmt.Fprintf(&b, "\nDecide the single best action for this cycle.")

	return b.String()
}

func totalLockedString(state types.FusedState) string {
	if state.Modular.TotalLocked == nil {
		return "0"
	}
	return state.Modular.TotalLocked.String()
}

// parseActionName maps the oracle's action vocabulary onto ActionType.
func parseActionName(raw string) (types.ActionType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LOCK":
		return types.ActionLock, nil
	case "UNLOCK":
		return types.ActionUnlock, nil
	case "EXTEND_LOCK":
		return types.ActionExtendLock, nil
	case "MODIFY_AMOUNT":
		return types.ActionModifyAmount, nil
	case "EMERGENCY_UNLOCK":
		return types.ActionEmergencyUnlock, nil
	case "HOLD":
		return types.ActionHold, nil
	default:
		return types.ActionHold, fmt.Errorf("policy: unknown action %q", raw)
	}
}

func normalizeRiskLevel(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LOW", "MEDIUM", "HIGH", "CRITICAL":
		return strings.ToUpper(strings.TrimSpace(raw))
	default:
		return "MEDIUM"
	}
}
