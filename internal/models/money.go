package models

import (
	"errors"
	"math"
)

// ErrAmountOverflow is returned when a price computation leaves int64.
var ErrAmountOverflow = errors.New("amount out of range")

// LineTotal is unitPrice*count in minor units.
func LineTotal(unitPrice int64, count int) (int64, error) {
	if unitPrice < 0 || count < 0 {
		return 0, ErrAmountOverflow
	}
	if count != 0 && unitPrice > math.MaxInt64/int64(count) {
		return 0, ErrAmountOverflow
	}
	return unitPrice * int64(count), nil
}

// AddAmounts sums non-negative amounts.
func AddAmounts(a, b int64) (int64, error) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}
