package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurallock/nla/internal/types"
)

func TestLoadConstraintConfigDefaults(t *testing.T) {
	require.NoError(t, loadConstraintConfig())

	assert.Equal(t, DefaultConstraints, Constraints)
}

func TestLoadConstraintConfigOverrides(t *testing.T) {
	t.Setenv("MAX_UNLOCK_RATIO", "0.25")
	t.Setenv("MIN_LOCK_DURATION", "3600")
	t.Setenv("MAX_GAS_PRICE", "55.5")
	t.Setenv("EMERGENCY_THRESHOLD", "emergency")
	t.Setenv("COOLDOWN_PERIOD", "600")

	require.NoError(t, loadConstraintConfig())

	assert.Equal(t, 0.25, Constraints.MaxUnlockRatio)
	assert.Equal(t, time.Hour, Constraints.MinLockDuration)
	assert.Equal(t, 55.5, Constraints.MaxGasPriceGwei)
	assert.Equal(t, types.StatusEmergency, Constraints.EmergencyThreshold)
	assert.Equal(t, 10*time.Minute, Constraints.Cooldown)
}

func TestLoadConstraintConfigRejectsBadValues(t *testing.T) {
	t.Setenv("MAX_UNLOCK_RATIO", "not-a-number")
	assert.Error(t, loadConstraintConfig())
}

func TestLoadConstraintConfigRejectsUnknownThreshold(t *testing.T) {
	t.Setenv("EMERGENCY_THRESHOLD", "mildly-concerned")
	assert.Error(t, loadConstraintConfig())
}
