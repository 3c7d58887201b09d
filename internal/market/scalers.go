package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PercentSizer sizes a position as a percentage of capital.
type PercentSizer struct {
	Percent decimal.Decimal
}

// Quantity returns floor(capital * percent / 100 / price).
func (s PercentSizer) Quantity(capital, price decimal.Decimal) (int64, error) {
	if !price.IsPositive() {
		return 0, fmt.Errorf("%w: sizing price %s", ErrInvalidParameters, price)
	}

	if capital.IsNegative() {
		return 0, nil
	}

	budget := capital.Mul(s.Percent).Div(hundred)
	return budget.Div(price).Floor().IntPart(), nil
}
