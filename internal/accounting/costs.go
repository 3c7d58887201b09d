package accounting

import (
	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// slippage moves the reference price against the trader: buys fill higher,
// sells fill lower.
type slippage struct {
	factor decimal.Decimal
}

func newSlippage(pct float64) slippage {
	return slippage{factor: decimal.NewFromFloat(pct).Div(hundred)}
}

func (s slippage) Apply(side market.Side, price decimal.Decimal) decimal.Decimal {
	delta := price.Mul(s.factor)
	if side == market.Sell {
		return price.Sub(delta)
	}
	return price.Add(delta)
}

// fixedRateCommission charges a percentage of the traded notional on every leg.
type fixedRateCommission struct {
	factor decimal.Decimal
}

func newFixedRateCommission(pct float64) fixedRateCommission {
	return fixedRateCommission{factor: decimal.NewFromFloat(pct).Div(hundred)}
}

func (c fixedRateCommission) Charge(price decimal.Decimal, qty int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(qty)).Abs().Mul(c.factor)
}
