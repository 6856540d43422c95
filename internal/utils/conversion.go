/*

This file contains common utility functions for converting between float
metrics and the fixed-point integers published on-chain. All chain-boundary
values go through these helpers so the scaling is deterministic and does not
drift with float formatting.

*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidScale   = errors.New("scale is invalid")
	ErrAmountNil      = errors.New("amount is nil")
	ErrAmountNegative = errors.New("amount is negative")
	ErrNotFinite      = errors.New("value is not finite")
)

// Float64ToFixed converts a float64 to a fixed-point big.Int with the given
// number of decimal places, truncating toward zero.
func Float64ToFixed(value float64, decimals int32) (*big.Int, error) {
	if decimals < 0 || decimals > 18 {
		return nil, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidScale, decimals)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("%w: value is %f", ErrNotFinite, value)
	}
	if value < 0 {
		return nil, ErrAmountNegative
	}

	d := decimal.NewFromFloat(value).Shift(decimals).Truncate(0)
	return d.BigInt(), nil
}

// FixedToFloat64 converts a fixed-point big.Int back to a float64 with the
// given number of decimal places.
func FixedToFloat64(amount *big.Int, decimals int32) (float64, error) {
	if decimals < 0 || decimals > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidScale, decimals)
	}
	if amount == nil {
		return 0, ErrAmountNil
	}
	if amount.Sign() < 0 {
		return 0, ErrAmountNegative
	}

	result, _ := decimal.NewFromBigInt(amount, -decimals).Float64()
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, result)
	}
	return result, nil
}

// RatioOf returns total scaled by a fractional ratio using basis-point
// integer arithmetic: floor(total * floor(ratio*10000) / 10000).
func RatioOf(total *big.Int, ratio float64) (*big.Int, error) {
	if total == nil {
		return nil, ErrAmountNil
	}
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return nil, fmt.Errorf("%w: ratio is %f", ErrNotFinite, ratio)
	}
	if ratio < 0 {
		return nil, ErrAmountNegative
	}

	bps := big.NewInt(int64(math.Floor(ratio * 10000)))
	out := new(big.Int).Mul(total, bps)
	return out.Quo(out, big.NewInt(10000)), nil
}
