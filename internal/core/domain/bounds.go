package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// MaxInputDigits bounds the integer part of caller-supplied amounts so
	// that products of two of them still fit a stored column.
	MaxInputDigits = 12

	// MaxStoredDigits is the integer width of a DECIMAL(38,10) column.
	MaxStoredDigits = 28

	maxExponent = 40
)

var (
	maxInput  = decimal.New(1, MaxInputDigits)
	maxStored = decimal.New(1, MaxStoredDigits)
)

// CheckAmount rejects a caller-supplied amount that is too large, or written
// with too many digits, to be computed with and persisted.
func CheckAmount(field string, d decimal.Decimal) error {
	return checkBound(field, d, maxInput)
}

// CheckStored rejects a computed value that would overflow a stored column.
func CheckStored(field string, d decimal.Decimal) error {
	return checkBound(field, d, maxStored)
}

func checkBound(field string, d decimal.Decimal, limit decimal.Decimal) error {
	// Cmp rescales both operands, so the exponent is bounded first.
	if exp := d.Exponent(); exp < -maxExponent || exp > maxExponent {
		return Invalid(field, "has too many digits")
	}
	if d.Abs().Cmp(limit) >= 0 {
		return Invalid(field, fmt.Sprintf("must be smaller than %s in magnitude", limit))
	}
	return nil
}
