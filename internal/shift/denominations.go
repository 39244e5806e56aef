package shift

import (
	"fmt"
	"sort"

	"tillpoint/backend/internal/domain"
)

// Denominations maps the drawer count keys to their value in cents.
var Denominations = map[string]int64{
	"pennies":  1,
	"nickels":  5,
	"dimes":    10,
	"quarters": 25,
	"ones":     100,
	"twos":     200,
	"fives":    500,
	"tens":     1000,
	"twenties": 2000,
	"fifties":  5000,
	"hundreds": 10000,
}

// CountCash totals a drawer count. Unknown denominations and negative counts
// are rejected.
func CountCash(counts domain.CashCounts) (int64, error) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	var total int64
	for _, name := range names {
		value, ok := Denominations[name]
		if !ok {
			return 0, fmt.Errorf("%w: unknown denomination %q", domain.ErrValidation, name)
		}
		count := counts[name]
		if count < 0 {
			return 0, fmt.Errorf("%w: negative count for %s", domain.ErrValidation, name)
		}
		total += value * int64(count)
	}
	return total, nil
}
