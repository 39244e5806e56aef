// Package money holds the integer-cents arithmetic used by checkout, refunds
// and reconciliation. Amounts are int64 minor units; rates are decimals so the
// product amount*rate is exact before it is rounded half-up to whole cents.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tillpoint/backend/internal/domain"
)

var (
	ErrNegativeAmount  = fmt.Errorf("%w: amount must not be negative", domain.ErrValidation)
	ErrInvalidRate     = fmt.Errorf("%w: rate must be between 0 and 1", domain.ErrValidation)
	ErrInvalidQuantity = domain.ErrInvalidQuantity
)

var one = decimal.NewFromInt(1)

// Tax returns round(amount * rate). Halves round up.
func Tax(amountCents int64, rate decimal.Decimal) (int64, error) {
	if amountCents < 0 {
		return 0, ErrNegativeAmount
	}
	if err := ValidateRate(rate); err != nil {
		return 0, err
	}
	return roundCents(decimal.NewFromInt(amountCents).Mul(rate)), nil
}

func LineTotal(unitPriceCents int64, quantity int) (int64, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	if unitPriceCents < 0 {
		return 0, ErrNegativeAmount
	}
	return unitPriceCents * int64(quantity), nil
}

// ProcessingFee is the platform application fee: round(total * rate) + fixed.
func ProcessingFee(totalCents int64, rate decimal.Decimal, fixedCents int64) (int64, error) {
	fee, err := Tax(totalCents, rate)
	if err != nil {
		return 0, err
	}
	if fixedCents < 0 {
		return 0, ErrNegativeAmount
	}
	return fee + fixedCents, nil
}

// Prorate scales a line total to a partial quantity:
// round(lineTotal / originalQty * requestedQty).
func Prorate(lineTotalCents int64, originalQty int, requestedQty int) (int64, error) {
	if originalQty <= 0 || requestedQty <= 0 {
		return 0, ErrInvalidQuantity
	}
	if lineTotalCents < 0 {
		return 0, ErrNegativeAmount
	}
	if requestedQty == originalQty {
		return lineTotalCents, nil
	}
	scaled := decimal.NewFromInt(lineTotalCents).Mul(decimal.NewFromInt(int64(requestedQty)))
	return scaled.DivRound(decimal.NewFromInt(int64(originalQty)), 0).IntPart(), nil
}

func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(one) {
		return ErrInvalidRate
	}
	return nil
}

// ParseRate parses a decimal fraction such as "0.08".
func ParseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidRate, raw)
	}
	if err := ValidateRate(rate); err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}

// Format renders cents as a dollar string, e.g. 1080 -> "$10.80".
func Format(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func roundCents(v decimal.Decimal) int64 {
	return v.Round(0).IntPart()
}
