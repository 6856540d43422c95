package utils

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat64ToFixed(t *testing.T) {
	t.Run("scales by the requested decimals", func(t *testing.T) {
		out, err := Float64ToFixed(1.23456789, 8)
		require.NoError(t, err)
		assert.Equal(t, "123456789", out.String())
	})

	t.Run("truncates toward zero", func(t *testing.T) {
		out, err := Float64ToFixed(0.00019, 4)
		require.NoError(t, err)
		assert.Equal(t, "1", out.String())
	})

	t.Run("zero value yields zero", func(t *testing.T) {
		out, err := Float64ToFixed(0, 8)
		require.NoError(t, err)
		assert.Zero(t, out.Sign())
	})

	t.Run("rejects negative values", func(t *testing.T) {
		_, err := Float64ToFixed(-1, 8)
		assert.ErrorIs(t, err, ErrAmountNegative)
	})

	t.Run("rejects non-finite values", func(t *testing.T) {
		_, err := Float64ToFixed(math.NaN(), 8)
		assert.ErrorIs(t, err, ErrNotFinite)

		_, err = Float64ToFixed(math.Inf(1), 8)
		assert.ErrorIs(t, err, ErrNotFinite)
	})

	t.Run("rejects out-of-range scales", func(t *testing.T) {
		_, err := Float64ToFixed(1, -1)
		assert.ErrorIs(t, err, ErrInvalidScale)

		_, err = Float64ToFixed(1, 19)
		assert.ErrorIs(t, err, ErrInvalidScale)
	})
}

func TestFixedToFloat64(t *testing.T) {
	t.Run("inverts the scaling", func(t *testing.T) {
		out, err := FixedToFloat64(big.NewInt(123456789), 8)
		require.NoError(t, err)
		assert.InDelta(t, 1.23456789, out, 1e-9)
	})

	t.Run("rejects nil amounts", func(t *testing.T) {
		_, err := FixedToFloat64(nil, 8)
		assert.ErrorIs(t, err, ErrAmountNil)
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		_, err := FixedToFloat64(big.NewInt(-1), 8)
		assert.ErrorIs(t, err, ErrAmountNegative)
	})
}

func TestRatioOf(t *testing.T) {
	t.Run("applies basis point arithmetic", func(t *testing.T) {
		out, err := RatioOf(big.NewInt(1000), 0.1)
		require.NoError(t, err)
		assert.Equal(t, "100", out.String())
	})

	t.Run("floors sub-basis-point ratios", func(t *testing.T) {
		out, err := RatioOf(big.NewInt(10000), 0.00005)
		require.NoError(t, err)
		assert.Zero(t, out.Sign())
	})

	t.Run("large totals do not overflow", func(t *testing.T) {
		total, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
		require.True(t, ok)

		out, err := RatioOf(total, 0.1)
		require.NoError(t, err)

		expected := new(big.Int).Quo(new(big.Int).Mul(total, big.NewInt(1000)), big.NewInt(10000))
		assert.Zero(t, out.Cmp(expected))
	})

	t.Run("rejects nil totals", func(t *testing.T) {
		_, err := RatioOf(nil, 0.1)
		assert.ErrorIs(t, err, ErrAmountNil)
	})

	t.Run("rejects negative ratios", func(t *testing.T) {
		_, err := RatioOf(big.NewInt(100), -0.1)
		assert.ErrorIs(t, err, ErrAmountNegative)
	})
}
