package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gamma-omg/algo-engine/internal/accounting"
	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/indicator"
	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/gamma-omg/algo-engine/internal/strategy"
	"github.com/shopspring/decimal"
)

// Result holds everything a single run produced. It carries no I/O.
type Result struct {
	Symbol     string                   `json:"symbol"`
	Strategy   string                   `json:"strategy"`
	Indicators []indicator.Spec         `json:"indicators,omitempty"`
	Candles    int                      `json:"candles"`
	Initial    decimal.Decimal          `json:"initial_capital"`
	Trades     []accounting.Trade       `json:"trades"`
	Equity     []accounting.EquityPoint `json:"equity"`
	Metrics    Metrics                  `json:"metrics"`
}

// Engine replays a historical series through one strategy. A run owns all
// of its state, so one Engine may serve concurrent runs.
type Engine struct {
	log *slog.Logger
	cfg config.Backtest
}

func NewEngine(log *slog.Logger, cfg config.Backtest) (*Engine, error) {
	if err := accounting.Validate(cfg); err != nil {
		return nil, err
	}

	return &Engine{log: log, cfg: cfg}, nil
}

// Run replays candles in timestamp order. Positions still open after the
// last candle are closed at its close price.
func (e *Engine) Run(ctx context.Context, symbol string, candles []market.Candle, s strategy.Strategy) (*Result, error) {
	series, err := prepare(symbol, candles)
	if err != nil {
		return nil, err
	}

	set, err := indicator.NewSet(s.Indicators())
	if err != nil {
		return nil, fmt.Errorf("failed to create indicators for %s: %w", s.Name(), err)
	}

	acct, err := accounting.New(e.cfg)
	if err != nil {
		return nil, err
	}

	if err := s.OnStart(symbol); err != nil {
		return nil, fmt.Errorf("failed to start strategy %s: %w", s.Name(), err)
	}
	defer s.OnStop()

	r := &run{
		log:  e.log.With(slog.String("symbol", symbol), slog.String("strategy", s.Name())),
		cfg:  e.cfg,
		acct: acct,
		risk: newRiskValidator(e.cfg),
	}

	for _, c := range series {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := r.checkRisk(c); err != nil {
			return nil, err
		}

		snap := set.Step(c)
		if sig := s.OnCandle(c, snap); sig != nil {
			if err := r.handle(c, sig); err != nil {
				return nil, err
			}
		}
	}

	if n := len(series); n > 0 {
		last := series[n-1]
		for _, p := range acct.Positions() {
			if _, err := acct.Close(p, last.Close, last.Time, reasonEndOfData); err != nil {
				return nil, fmt.Errorf("failed to close position at end of data: %w", err)
			}
		}
	}

	res := &Result{
		Symbol:     symbol,
		Strategy:   s.Name(),
		Indicators: set.Specs(),
		Candles:    len(series),
		Initial:    acct.InitialCapital(),
		Trades:     acct.Ledger(),
		Equity:     acct.Equity(),
	}
	res.Metrics = ComputeMetrics(res.Initial, res.Trades, res.Equity)

	r.log.Info("backtest finished",
		slog.Int("candles", res.Candles),
		slog.Int("trades", res.Metrics.TotalTrades),
		slog.String("pnl", res.Metrics.TotalPnL.StringFixed(2)),
		slog.Float64("max_drawdown_pct", res.Metrics.MaxDrawdownPercent))

	return res, nil
}

// prepare validates the series and returns a copy sorted by time. Candles
// sharing a timestamp keep their input order.
func prepare(symbol string, candles []market.Candle) ([]market.Candle, error) {
	series := make([]market.Candle, len(candles))
	copy(series, candles)

	for i, c := range series {
		if c.Symbol != "" && c.Symbol != symbol {
			return nil, fmt.Errorf("%w: candle %d belongs to %s, not %s", market.ErrInvalidParameters, i, c.Symbol, symbol)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		series[i].Symbol = symbol
	}

	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Time.Before(series[j].Time)
	})

	return series, nil
}

type run struct {
	log  *slog.Logger
	cfg  config.Backtest
	acct *accounting.Accountant
	risk riskValidator
}

func (r *run) checkRisk(c market.Candle) error {
	for _, p := range r.acct.Positions() {
		reason, ok := r.risk.NeedClose(p, c.Close)
		if !ok {
			continue
		}

		if err := r.close(p, c.Close, c, reason); err != nil {
			return err
		}
	}

	return nil
}

// handle maps a signal to accountant calls. An opposite signal closes the
// open position and, when shorts are allowed, reverses it.
func (r *run) handle(c market.Candle, sig *strategy.Signal) error {
	ref := sig.ReferencePrice
	if !ref.IsPositive() {
		ref = c.Close
	}

	if p, ok := r.acct.PositionFor(c.Symbol); ok {
		if p.Side == sig.Side {
			return nil
		}

		if err := r.close(p, ref, c, sig.Reason); err != nil {
			return err
		}
	}

	if sig.Side == market.Sell && !r.cfg.AllowShort {
		return nil
	}

	p, err := r.acct.Open(c.Symbol, sig.Side, ref, c.Time)
	if errors.Is(err, market.ErrInsufficientCapital) || errors.Is(err, market.ErrMaxPositions) {
		r.log.Debug("signal skipped", slog.String("side", string(sig.Side)), slog.String("reason", sig.Reason), slog.Any("error", err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open position: %w", err)
	}

	r.log.Debug("position opened",
		slog.String("side", string(p.Side)),
		slog.String("price", p.EntryPrice.String()),
		slog.Int64("qty", p.Quantity),
		slog.String("reason", sig.Reason),
		slog.Time("time", c.Time))

	return nil
}

func (r *run) close(p accounting.Position, price decimal.Decimal, c market.Candle, reason string) error {
	t, err := r.acct.Close(p, price, c.Time, reason)
	if err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}

	r.log.Debug("position closed",
		slog.String("side", string(t.Side)),
		slog.String("pnl", t.PnL.StringFixed(2)),
		slog.Float64("pnl_pct", t.PnLPercent),
		slog.String("reason", reason),
		slog.Time("time", c.Time))

	return nil
}
