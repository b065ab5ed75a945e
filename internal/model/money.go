package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnits is the number of decimal places money is stored with.
const MinorUnits = 2

var hundred = decimal.NewFromInt(100)

// ValidAmount reports whether amount is a positive value with at most two
// decimal places.
func ValidAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	scaled := amount.Mul(hundred)
	return scaled.Equal(scaled.Floor())
}

// NormalizeCurrency upper-cases and validates an ISO 4217 style code.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != 3 {
		return "", fmt.Errorf("currency must be a 3 letter code, got %q", code)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("currency must be alphabetic, got %q", code)
		}
	}
	return c, nil
}
