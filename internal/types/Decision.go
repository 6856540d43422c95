/*

This file contains the decision and execution result types flowing between
the policy engine, the orchestrator gate and the execution engine, plus the
constraint configuration the clamp step enforces.

*/

package types

import (
	"math/big"
	"time"
)

// ActionType mirrors the contract's AI action enum, with Hold as a pure
// off-chain no-op that never reaches execution.
type ActionType uint8

const (
	ActionLock ActionType = iota
	ActionUnlock
	ActionExtendLock
	ActionModifyAmount
	ActionEmergencyUnlock
	ActionHold
)

func (a ActionType) String() string {
	switch a {
	case ActionLock:
		return "Lock"
	case ActionUnlock:
		return "Unlock"
	case ActionExtendLock:
		return "ExtendLock"
	case ActionModifyAmount:
		return "ModifyAmount"
	case ActionEmergencyUnlock:
		return "EmergencyUnlock"
	case ActionHold:
		return "Hold"
	default:
		return "Unknown"
	}
}

// Decision is the clamped output of the policy engine for one cycle. It is
// retained in memory only for inspection; the next cycle supersedes it.
type Decision struct {
	Action         ActionType `json:"action"`
	LockID         *uint64    `json:"lock_id,omitempty"`  // Target lock, when the action needs one
	Amount         *big.Int   `json:"amount,omitempty"`   // Smallest unit, post-clamp
	Duration       int64      `json:"duration,omitempty"` // Seconds, post-floor
	Confidence     float64    `json:"confidence"`         // 0 to 1
	Reasoning      string     `json:"reasoning"`
	Constraints    []string   `json:"constraints"`     // Satisfied/applied constraint labels
	RiskAssessment string     `json:"risk_assessment"` // LOW | MEDIUM | HIGH | CRITICAL
}

// IsHold reports whether the decision is a no-op that must never execute.
func (d Decision) IsHold() bool {
	return d.Action == ActionHold
}

// ExecutionResult is the outcome of submitting one decision on-chain.
type ExecutionResult struct {
	Success     bool     `json:"success"`
	TxHash      string   `json:"tx_hash,omitempty"`
	BlockNumber uint64   `json:"block_number,omitempty"`
	GasUsed     uint64   `json:"gas_used,omitempty"`
	Error       string   `json:"error,omitempty"`
	StateProof  string   `json:"state_proof,omitempty"` // FusedState hash the action was executed against
}

// ConstraintConfig is the hard safety rule set the clamp step applies to
// every oracle proposal. Process-wide, mutable only through an explicit
// update, read each cycle.
type ConstraintConfig struct {
	MaxUnlockRatio     float64       `json:"max_unlock_ratio"`    // Max fraction of total locked per unlock
	MinLockDuration    time.Duration `json:"min_lock_duration"`   // Floor for lock/extend durations
	MaxGasPriceGwei    float64       `json:"max_gas_price_gwei"`  // Above this the engine holds
	EmergencyThreshold HealthStatus  `json:"emergency_threshold"` // Minimum status for EmergencyUnlock
	Cooldown           time.Duration `json:"cooldown"`            // Minimum interval between executed actions
}

// CycleReport summarizes one completed orchestrator cycle for persistence
// and the status API. Losing these on restart affects reporting only.
type CycleReport struct {
	CycleNumber  int             `json:"cycle_number"`
	Timestamp    time.Time       `json:"timestamp"`
	StateHash    string          `json:"state_hash"`
	HealthStatus HealthStatus    `json:"health_status"`
	Action       ActionType      `json:"action"`
	Confidence   float64         `json:"confidence"`
	Reasoning    string          `json:"reasoning"`
	Executed     bool            `json:"executed"`
	Result       ExecutionResult `json:"result"`
	Duration     time.Duration   `json:"duration"`
}
