/*

This file contains the lock record types mirrored from the locker contract and
the aggregated modular signals derived from enumerating them.

*/

package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LockType mirrors the contract's lock type enum.
type LockType uint8

const (
	LockTypeFlexible LockType = iota
	LockTypeTimeLocked
	LockTypeConditional
	LockTypePermanent
)

func (t LockType) String() string {
	switch t {
	case LockTypeFlexible:
		return "Flexible"
	case LockTypeTimeLocked:
		return "TimeLocked"
	case LockTypeConditional:
		return "Conditional"
	case LockTypePermanent:
		return "Permanent"
	default:
		return "Unknown"
	}
}

// LockRecord is a single on-chain lock. The contract owns these; the agent
// only ever reads them.
type LockRecord struct {
	ID            uint64         `json:"id"`
	Amount        *big.Int       `json:"amount"`      // LP token amount in smallest unit
	LockTime      int64          `json:"lock_time"`   // Unix seconds
	UnlockTime    int64          `json:"unlock_time"` // Unix seconds, 0 for flexible locks
	LockType      LockType       `json:"lock_type"`
	Owner         common.Address `json:"owner"`
	IsLocked      bool           `json:"is_locked"`
	ConditionHash common.Hash    `json:"condition_hash"`
}

// ModularSignals is the aggregate view over all lock records, recomputed each
// cycle by full enumeration.
type ModularSignals struct {
	TotalLocked     *big.Int `json:"total_locked"`      // Sum of active lock amounts, smallest unit
	ActiveLocks     int      `json:"active_locks"`      // Count of records with IsLocked
	AvgLockDuration float64  `json:"avg_lock_duration"` // Mean seconds since lock, active locks only
	FlexibleRatio   float64  `json:"flexible_ratio"`    // Per-type ratios sum to 1 when any locks exist
	TimeLockedRatio float64  `json:"time_locked_ratio"`
	ConditionalRatio float64 `json:"conditional_ratio"`
	PermanentRatio  float64  `json:"permanent_ratio"`
	RecentUnlocks   int      `json:"recent_unlocks"`  // Unlocked within trailing 24h
	PendingUnlocks  int      `json:"pending_unlocks"` // Time-locks expiring within 7 days
}
