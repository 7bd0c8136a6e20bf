// Package safe provides helpers for safe numeric conversions with overflow checks.
package safe

import (
	"fmt"
	"math"
	"math/big"
)

// Int64 converts signed or unsigned integers to int64 with range validation.
func Int64[T ~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64](v T) (int64, error) {
	switch value := any(v).(type) {
	case int:
		return int64(value), nil
	case int32:
		return int64(value), nil
	case int64:
		return value, nil
	case uint:
		if uint64(value) > math.MaxInt64 {
			return 0, fmt.Errorf("value %d out of int64 range", v)
		}
	case uint32:
		return int64(value), nil
	case uint64:
		if value > math.MaxInt64 {
			return 0, fmt.Errorf("value %d out of int64 range", v)
		}
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	return int64(v), nil
}

// Uint64 converts signed or unsigned integers to uint64 while guarding against negatives.
func Uint64[T ~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64](v T) (uint64, error) {
	switch value := any(v).(type) {
	case int:
		if value < 0 {
			return 0, fmt.Errorf("value %d out of uint64 range", v)
		}
		return uint64(value), nil
	case int32:
		if value < 0 {
			return 0, fmt.Errorf("value %d out of uint64 range", v)
		}
		return uint64(value), nil
	case int64:
		if value < 0 {
			return 0, fmt.Errorf("value %d out of uint64 range", v)
		}
		return uint64(value), nil
	case uint:
		return uint64(value), nil
	case uint32:
		return uint64(value), nil
	case uint64:
		return value, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// BigUint64 converts a ledger uint256 to uint64, rejecting nil, negative and oversized values.
func BigUint64(v *big.Int) (uint64, error) {
	if v == nil {
		return 0, fmt.Errorf("nil value")
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("value %s out of uint64 range", v)
	}
	return v.Uint64(), nil
}

// BigInt64 converts a ledger uint256 to int64, as used for unix timestamps.
func BigInt64(v *big.Int) (int64, error) {
	u, err := BigUint64(v)
	if err != nil {
		return 0, err
	}
	return Int64(u)
}
