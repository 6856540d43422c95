/*

This file contains the hard safety constraint configuration applied to every
oracle proposal before it can reach execution. The values are policy
constants: they mirror the deployed contract's expectations and are not
derived from any risk model.

*/

package config

import (
	"time"

	"github.com/neurallock/nla/internal/types"
)

// DefaultConstraints is the baseline constraint set, used for any value not
// overridden through the environment.
var DefaultConstraints = types.ConstraintConfig{
	MaxUnlockRatio:     0.1,                  // Max 10% of total locked per unlock action
	MinLockDuration:    24 * time.Hour,       // Locks shorter than 1 day are floored
	MaxGasPriceGwei:    100,                  // Above 100 Gwei the engine holds
	EmergencyThreshold: types.StatusCritical, // EmergencyUnlock requires Critical or worse
	Cooldown:           5 * time.Minute,      // Minimum spacing between executed actions
}

// Constraints is the active constraint configuration, populated by LoadConfig.
var Constraints types.ConstraintConfig

// loadConstraintConfig loads the five constraint values, each individually
// overridable via environment.
func loadConstraintConfig() error {
	c := DefaultConstraints

	ratio, err := getEnvAsFloat64WithDefault("MAX_UNLOCK_RATIO", c.MaxUnlockRatio)
	if err != nil {
		return err
	}
	c.MaxUnlockRatio = ratio

	minLockSec, err := getEnvAsUint64WithDefault("MIN_LOCK_DURATION", uint64(c.MinLockDuration/time.Second))
	if err != nil {
		return err
	}
	c.MinLockDuration = time.Duration(minLockSec) * time.Second

	maxGas, err := getEnvAsFloat64WithDefault("MAX_GAS_PRICE", c.MaxGasPriceGwei)
	if err != nil {
		return err
	}
	c.MaxGasPriceGwei = maxGas

	if raw := getEnvWithDefault("EMERGENCY_THRESHOLD", c.EmergencyThreshold.String()); raw != "" {
		status, err := types.ParseHealthStatus(raw)
		if err != nil {
			return err
		}
		c.EmergencyThreshold = status
	}

	cooldownSec, err := getEnvAsUint64WithDefault("COOLDOWN_PERIOD", uint64(c.Cooldown/time.Second))
	if err != nil {
		return err
	}
	c.Cooldown = time.Duration(cooldownSec) * time.Second

	Constraints = c
	return nil
}
