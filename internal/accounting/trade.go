package accounting

import (
	"time"

	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/shopspring/decimal"
)

// Position is a handle returned by Open. Only the accountant that issued it
// can close it.
type Position struct {
	ID             uint64          `json:"id"`
	Symbol         string          `json:"symbol"`
	Side           market.Side     `json:"side"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	EntryPrice     decimal.Decimal `json:"entry_price"`
	Quantity       int64           `json:"quantity"`
	EntryTime      time.Time       `json:"entry_time"`
	Commission     decimal.Decimal `json:"commission"`
	Slippage       decimal.Decimal `json:"slippage"`
}

// Cost is the entry notional.
func (p Position) Cost() decimal.Decimal {
	return p.EntryPrice.Mul(decimal.NewFromInt(p.Quantity))
}

// Margin is the capital held while the position is open: the notional plus
// the entry commission. It is also the most the position can lose.
func (p Position) Margin() decimal.Decimal {
	return p.Cost().Add(p.Commission)
}

type Trade struct {
	Symbol     string          `json:"symbol"`
	Side       market.Side     `json:"side"`
	EntryTime  time.Time       `json:"entry_time"`
	ExitTime   time.Time       `json:"exit_time"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Quantity   int64           `json:"quantity"`
	PnL        decimal.Decimal `json:"pnl"`
	PnLPercent float64         `json:"pnl_percent"`
	Commission decimal.Decimal `json:"commission"`
	Slippage   decimal.Decimal `json:"slippage"`
	ExitReason string          `json:"exit_reason,omitempty"`
}

func (t Trade) Won() bool {
	return t.PnL.IsPositive()
}

type EquityPoint struct {
	Time            time.Time       `json:"time"`
	Equity          decimal.Decimal `json:"equity"`
	DrawdownPercent float64         `json:"drawdown_percent"`
}
