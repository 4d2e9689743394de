package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the fixed-point precision of the USDC and LP token contracts.
const TokenDecimals = 7

// ToStroops encodes a token amount as the i128 integer string the contracts
// expect. Sub-stroop precision is truncated.
func ToStroops(amount float64) string {
	return decimal.NewFromFloat(amount).Shift(TokenDecimals).Truncate(0).String()
}

// FromStroops decodes an i128 integer string into a token amount.
func FromStroops(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("domain.FromStroops: %q: %w", raw, err)
	}
	return d.Shift(-TokenDecimals).InexactFloat64(), nil
}

// RoundAmount rounds to whole cents so generated amounts stay readable.
func RoundAmount(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}
