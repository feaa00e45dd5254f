package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FormatCents renders integer cents as a fixed two-decimal string ("2160" -> "21.60").
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ParseAmountToCents converts a decimal amount string into cents, rejecting sub-cent precision.
func ParseAmountToCents(raw string) (int64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	cents := amount.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than two decimal places", raw)
	}
	return cents.IntPart(), nil
}

// ApplyRate multiplies cents by a fractional rate and rounds half away from zero to whole cents.
func ApplyRate(cents int64, rate decimal.Decimal) int64 {
	if cents == 0 || rate.IsZero() {
		return 0
	}
	return decimal.NewFromInt(cents).Mul(rate).Round(0).IntPart()
}
