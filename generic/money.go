package generic

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// =============================================================================
// CURRENCY - ISO 4217 code validation and minor-unit scale
// =============================================================================

// ParseCurrency validates an ISO 4217 code and returns it upper-cased.
func ParseCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("unknown currency %q: %w", code, err)
	}
	return unit.String(), nil
}

// CurrencyScale returns the number of decimal places stored for a currency
// (JPY 0, USD 2, ...). Unknown codes fall back to 2.
func CurrencyScale(code string) int32 {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// RoundDown truncates toward zero at the currency's scale.
// Stored balances are always normalized with it.
func RoundDown(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Truncate(CurrencyScale(code))
}

// FitsScale reports whether amount carries no more precision than the
// currency allows ("200.00" fits JPY, "200.5" does not).
func FitsScale(amount decimal.Decimal, code string) bool {
	return amount.Equal(RoundDown(amount, code))
}
