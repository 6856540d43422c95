/*

This file aggregates the modular lock signals by enumerating every lock
record on the contract. Individual record read failures are skipped so one
bad index never poisons a whole cycle.

*/

package observer

import (
	"context"
	"math/big"
	"time"

	"github.com/neurallock/nla/internal/chain"
	"github.com/neurallock/nla/internal/logger"
	"github.com/neurallock/nla/internal/types"
)

var signalsLogger = logger.GetForComponent("signal_retriever")

const (
	recentUnlockWindow  = 24 * time.Hour
	pendingUnlockWindow = 7 * 24 * time.Hour
)

// ActiveLocks returns every lock record that is still locked, in id order.
// Read failures on individual records are skipped.
func ActiveLocks(ctx context.Context, reader chain.Reader) ([]types.LockRecord, error) {
	lockCount, err := reader.LockCount(ctx)
	if err != nil {
		return nil, err
	}

	var active []types.LockRecord
	for id := uint64(0); id < lockCount; id++ {
		record, err := reader.LockRecord(ctx, id)
		if err != nil {
			signalsLogger.Warn().Err(err).Uint64("lock_id", id).Msg("Skipping unreadable lock record")
			continue
		}
		if record.IsLocked {
			active = append(active, record)
		}
	}

	return active, nil
}

// fetchModularSignals enumerates all lock records and aggregates them.
func fetchModularSignals(ctx context.Context, reader chain.Reader, now time.Time) (types.ModularSignals, error) {
	lockCount, err := reader.LockCount(ctx)
	if err != nil {
		return neutralModularSignals(), err
	}

	var (
		totalLocked   = new(big.Int)
		activeLocks   int
		totalDuration int64
		typeCounts    [4]int
		recentUnlocks int
		pendingUnlocks int
	)

	nowUnix := now.Unix()
	recentCutoff := now.Add(-recentUnlockWindow).Unix()
	pendingCutoff := now.Add(pendingUnlockWindow).Unix()

	skipped := 0
	for id := uint64(0); id < lockCount; id++ {
		record, err := reader.LockRecord(ctx, id)
		if err != nil {
			skipped++
			continue
		}

		if record.IsLocked {
			activeLocks++
			if record.Amount != nil {
				totalLocked.Add(totalLocked, record.Amount)
			}
			totalDuration += nowUnix - record.LockTime

			if record.LockType <= types.LockTypePermanent {
				typeCounts[record.LockType]++
			}

			if record.LockType == types.LockTypeTimeLocked && record.UnlockTime <= pendingCutoff {
				pendingUnlocks++
			}
		} else if record.UnlockTime > recentCutoff {
			recentUnlocks++
		}
	}

	if skipped > 0 {
		signalsLogger.Warn().Int("skipped", skipped).Uint64("lockCount", lockCount).Msg("Skipped unreadable lock records")
	}

	totalTyped := typeCounts[0] + typeCounts[1] + typeCounts[2] + typeCounts[3]

	signals := types.ModularSignals{
		TotalLocked:    totalLocked,
		ActiveLocks:    activeLocks,
		RecentUnlocks:  recentUnlocks,
		PendingUnlocks: pendingUnlocks,
	}
	if activeLocks > 0 {
		signals.AvgLockDuration = float64(totalDuration) / float64(activeLocks)
	}
	if totalTyped > 0 {
		signals.FlexibleRatio = float64(typeCounts[0]) / float64(totalTyped)
		signals.TimeLockedRatio = float64(typeCounts[1]) / float64(totalTyped)
		signals.ConditionalRatio = float64(typeCounts[2]) / float64(totalTyped)
		signals.PermanentRatio = float64(typeCounts[3]) / float64(totalTyped)
	}

	return signals, nil
}

// neutralModularSignals is the fail-soft default when enumeration fails.
func neutralModularSignals() types.ModularSignals {
	return types.ModularSignals{TotalLocked: new(big.Int)}
}
