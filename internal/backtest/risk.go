package backtest

import (
	"github.com/gamma-omg/algo-engine/internal/accounting"
	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/shopspring/decimal"
)

const (
	reasonStopLoss   = "stop_loss"
	reasonTakeProfit = "take_profit"
	reasonEndOfData  = "end_of_data"
)

// riskValidator closes positions whose move from the entry price crossed
// the configured stop loss or take profit. Zero disables a bound.
type riskValidator struct {
	stopLoss   decimal.Decimal
	takeProfit decimal.Decimal
}

func newRiskValidator(cfg config.Backtest) riskValidator {
	return riskValidator{
		stopLoss:   decimal.NewFromFloat(cfg.StopLossPercent),
		takeProfit: decimal.NewFromFloat(cfg.TakeProfitPercent),
	}
}

func (v riskValidator) NeedClose(p accounting.Position, price decimal.Decimal) (string, bool) {
	if v.stopLoss.IsZero() && v.takeProfit.IsZero() {
		return "", false
	}

	move := price.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(hundred).Mul(decimal.NewFromInt(p.Side.Sign()))
	if v.takeProfit.IsPositive() && move.GreaterThanOrEqual(v.takeProfit) {
		return reasonTakeProfit, true
	}
	if v.stopLoss.IsPositive() && move.LessThanOrEqual(v.stopLoss.Neg()) {
		return reasonStopLoss, true
	}

	return "", false
}
