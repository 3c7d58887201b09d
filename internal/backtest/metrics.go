package backtest

import (
	"math"

	"github.com/gamma-omg/algo-engine/internal/accounting"
	"github.com/shopspring/decimal"
)

// TradingDays annualises per-trade Sharpe and Sortino ratios.
const TradingDays = 252

var hundred = decimal.NewFromInt(100)

// Metrics is a read-only summary of a trade ledger and its equity curve.
// Degenerate ratios are reported as 0, never NaN or Inf.
type Metrics struct {
	TotalTrades        int             `json:"total_trades"`
	WinningTrades      int             `json:"winning_trades"`
	LosingTrades       int             `json:"losing_trades"`
	WinRate            float64         `json:"win_rate"`
	TotalPnL           decimal.Decimal `json:"total_pnl"`
	TotalReturnPercent float64         `json:"total_return_percent"`
	AverageWin         decimal.Decimal `json:"average_win"`
	AverageLoss        decimal.Decimal `json:"average_loss"`
	ProfitFactor       float64         `json:"profit_factor"`
	MaxDrawdownPercent float64         `json:"max_drawdown_percent"`
	SharpeRatio        float64         `json:"sharpe_ratio"`
	SortinoRatio       float64         `json:"sortino_ratio"`
	FinalCapital       decimal.Decimal `json:"final_capital"`
	TotalCommission    decimal.Decimal `json:"total_commission"`
	TotalSlippage      decimal.Decimal `json:"total_slippage"`
}

func ComputeMetrics(initial decimal.Decimal, trades []accounting.Trade, equity []accounting.EquityPoint) Metrics {
	m := Metrics{
		TotalTrades:  len(trades),
		FinalCapital: initial,
	}

	var grossProfit, grossLoss decimal.Decimal
	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		switch {
		case t.PnL.IsPositive():
			m.WinningTrades++
			grossProfit = grossProfit.Add(t.PnL)
		case t.PnL.IsNegative():
			m.LosingTrades++
			grossLoss = grossLoss.Add(t.PnL)
		}

		m.TotalPnL = m.TotalPnL.Add(t.PnL)
		m.TotalCommission = m.TotalCommission.Add(t.Commission)
		m.TotalSlippage = m.TotalSlippage.Add(t.Slippage)
		returns = append(returns, t.PnLPercent)
	}

	m.FinalCapital = initial.Add(m.TotalPnL)
	if initial.IsPositive() {
		m.TotalReturnPercent = m.TotalPnL.Div(initial).Mul(hundred).InexactFloat64()
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}
	if m.WinningTrades > 0 {
		m.AverageWin = grossProfit.Div(decimal.NewFromInt(int64(m.WinningTrades)))
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = grossLoss.Div(decimal.NewFromInt(int64(m.LosingTrades)))
	}
	if !grossLoss.IsZero() {
		m.ProfitFactor = grossProfit.Div(grossLoss.Abs()).InexactFloat64()
	}

	m.MaxDrawdownPercent = maxDrawdown(initial, equity)
	m.SharpeRatio = sharpe(returns)
	m.SortinoRatio = sortino(returns)
	return m
}

// maxDrawdown measures every equity point against the running peak, which
// starts at the initial capital.
func maxDrawdown(initial decimal.Decimal, equity []accounting.EquityPoint) float64 {
	peak := initial
	worst := 0.0
	for _, e := range equity {
		if e.Equity.GreaterThan(peak) {
			peak = e.Equity
		}
		if !peak.IsPositive() {
			continue
		}

		dd := peak.Sub(e.Equity).Div(peak).Mul(hundred).InexactFloat64()
		worst = max(worst, dd)
	}

	return worst
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	sd := stdDev(returns)
	if sd == 0 {
		return 0
	}

	return mean(returns) / sd * math.Sqrt(TradingDays)
}

// sortino divides the mean return by the deviation of losing returns only.
// It needs at least two losing trades for a sample deviation.
func sortino(returns []float64) float64 {
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}

	if len(downside) < 2 {
		return 0
	}

	sd := stdDev(downside)
	if sd == 0 {
		return 0
	}

	return mean(returns) / sd * math.Sqrt(TradingDays)
}

func mean(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// stdDev is the sample standard deviation.
func stdDev(v []float64) float64 {
	m := mean(v)
	sum := 0.0
	for _, x := range v {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(v)-1))
}
