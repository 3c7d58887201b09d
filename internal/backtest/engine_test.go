package backtest

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gamma-omg/algo-engine/internal/accounting"
	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/indicator"
	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/gamma-omg/algo-engine/internal/strategy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0      = time.Date(2025, 3, 3, 9, 15, 0, 0, time.UTC)
	discard = slog.New(slog.DiscardHandler)
)

func series(symbol string, closes ...float64) []market.Candle {
	res := make([]market.Candle, len(closes))
	for i, c := range closes {
		p := decimal.NewFromFloat(c)
		res[i] = market.Candle{
			Symbol: symbol,
			Time:   t0.Add(time.Duration(i) * time.Minute),
			Open:   p,
			High:   p,
			Low:    p,
			Close:  p,
			Volume: 100,
		}
	}
	return res
}

func wave(symbol string, n int) []market.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/7) + float64(i%5)
	}
	return series(symbol, closes...)
}

// scripted emits the configured side at the given candle index.
type scripted struct {
	signals map[int]market.Side
	n       int
	started bool
	stopped bool
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Indicators() []indicator.Spec {
	return []indicator.Spec{{Kind: indicator.KindSMA, Period: 2}}
}

func (s *scripted) OnStart(string) error {
	s.started = true
	s.n = 0
	return nil
}

func (s *scripted) OnStop() { s.stopped = true }

func (s *scripted) OnTick(market.Tick) *strategy.Signal { return nil }

func (s *scripted) OnCandle(c market.Candle, _ indicator.Snapshot) *strategy.Signal {
	defer func() { s.n++ }()

	side, ok := s.signals[s.n]
	if !ok {
		return nil
	}
	return &strategy.Signal{Symbol: c.Symbol, Side: side, Reason: "scripted", Time: c.Time}
}

func frictionless() config.Backtest {
	return config.Backtest{
		InitialCapital:      1000,
		PositionSizePercent: 100,
		MaxPositions:        1,
	}
}

func runEngine(t *testing.T, cfg config.Backtest, candles []market.Candle, s strategy.Strategy) *Result {
	t.Helper()

	e, err := NewEngine(discard, cfg)
	require.NoError(t, err)

	res, err := e.Run(context.Background(), "SYM", candles, s)
	require.NoError(t, err)
	return res
}

func TestRun_LongRoundTrips(t *testing.T) {
	s := &scripted{signals: map[int]market.Side{1: market.Buy, 3: market.Sell, 5: market.Buy}}
	res := runEngine(t, frictionless(), series("SYM", 10, 11, 12, 13, 12, 11, 10), s)

	assert.True(t, s.started)
	assert.True(t, s.stopped)
	require.Len(t, res.Trades, 2)

	first := res.Trades[0]
	assert.Equal(t, market.Buy, first.Side)
	assert.Equal(t, int64(90), first.Quantity)
	assert.True(t, decimal.NewFromInt(180).Equal(first.PnL), first.PnL.String())
	assert.Equal(t, "scripted", first.ExitReason)

	last := res.Trades[1]
	assert.Equal(t, int64(107), last.Quantity)
	assert.True(t, decimal.NewFromInt(-107).Equal(last.PnL), last.PnL.String())
	assert.Equal(t, reasonEndOfData, last.ExitReason)
	assert.Equal(t, t0.Add(6*time.Minute), last.ExitTime)

	m := res.Metrics
	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.Equal(t, 50.0, m.WinRate)
	assert.True(t, decimal.NewFromInt(1073).Equal(m.FinalCapital))
	assert.InDelta(t, 180.0/107.0, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 107.0/1180.0*100, m.MaxDrawdownPercent, 1e-9)
	assert.Equal(t, 0.0, m.SortinoRatio)
	assert.NotEqual(t, 0.0, m.SharpeRatio)
}

func TestRun_SellWithoutPositionIgnoredWhenLongOnly(t *testing.T) {
	s := &scripted{signals: map[int]market.Side{0: market.Sell}}
	res := runEngine(t, frictionless(), series("SYM", 10, 9, 8), s)
	assert.Empty(t, res.Trades)
}

func TestRun_ShortReversal(t *testing.T) {
	cfg := frictionless()
	cfg.AllowShort = true

	s := &scripted{signals: map[int]market.Side{1: market.Buy, 3: market.Sell, 5: market.Buy}}
	res := runEngine(t, cfg, series("SYM", 10, 11, 12, 13, 12, 11, 10), s)

	require.Len(t, res.Trades, 3)
	assert.Equal(t, market.Buy, res.Trades[0].Side)

	short := res.Trades[1]
	assert.Equal(t, market.Sell, short.Side)
	assert.Equal(t, int64(90), short.Quantity)
	assert.True(t, decimal.NewFromInt(180).Equal(short.PnL), short.PnL.String())

	assert.Equal(t, market.Buy, res.Trades[2].Side)
	assert.Equal(t, reasonEndOfData, res.Trades[2].ExitReason)
}

func TestRun_StopLoss(t *testing.T) {
	cfg := frictionless()
	cfg.StopLossPercent = 5

	s := &scripted{signals: map[int]market.Side{0: market.Buy}}
	res := runEngine(t, cfg, series("SYM", 13, 12.5, 12, 14), s)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, reasonStopLoss, res.Trades[0].ExitReason)
	assert.True(t, decimal.NewFromInt(12).Equal(res.Trades[0].ExitPrice))
}

func TestRun_TakeProfit(t *testing.T) {
	cfg := frictionless()
	cfg.TakeProfitPercent = 10

	s := &scripted{signals: map[int]market.Side{0: market.Buy}}
	res := runEngine(t, cfg, series("SYM", 10, 10.5, 11, 12), s)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, reasonTakeProfit, res.Trades[0].ExitReason)
	assert.True(t, decimal.NewFromInt(11).Equal(res.Trades[0].ExitPrice))
}

func TestRun_InsufficientCapitalContinues(t *testing.T) {
	cfg := frictionless()
	cfg.InitialCapital = 5

	s := &scripted{signals: map[int]market.Side{0: market.Buy, 1: market.Buy}}
	res := runEngine(t, cfg, series("SYM", 10, 4, 5), s)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, t0.Add(time.Minute), res.Trades[0].EntryTime)
}

func TestRun_SortsCopyOfInput(t *testing.T) {
	candles := series("SYM", 10, 11, 12, 13)
	shuffled := []market.Candle{candles[2], candles[0], candles[3], candles[1]}

	s := &scripted{signals: map[int]market.Side{0: market.Buy}}
	res := runEngine(t, frictionless(), shuffled, s)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, t0, res.Trades[0].EntryTime)
	assert.Equal(t, candles[2], shuffled[0])
}

func TestRun_InvalidCandle(t *testing.T) {
	candles := series("SYM", 10, 11)
	candles[1].Low = decimal.Zero

	e, err := NewEngine(discard, frictionless())
	require.NoError(t, err)

	_, err = e.Run(context.Background(), "SYM", candles, &scripted{})
	require.ErrorIs(t, err, market.ErrInvalidParameters)

	_, err = e.Run(context.Background(), "OTHER", series("SYM", 10), &scripted{})
	require.ErrorIs(t, err, market.ErrInvalidParameters)
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	cfg := frictionless()
	cfg.PositionSizePercent = 0

	_, err := NewEngine(discard, cfg)
	require.ErrorIs(t, err, market.ErrInvalidParameters)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, err := NewEngine(discard, frictionless())
	require.NoError(t, err)

	_, err = e.Run(ctx, "SYM", series("SYM", 10, 11), &scripted{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_NoTrades(t *testing.T) {
	res := runEngine(t, frictionless(), series("SYM", 10, 11, 12), &scripted{})

	m := res.Metrics
	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 0.0, m.WinRate)
	assert.Equal(t, 0.0, m.ProfitFactor)
	assert.Equal(t, 0.0, m.SharpeRatio)
	assert.Equal(t, 0.0, m.SortinoRatio)
	assert.Equal(t, 0.0, m.MaxDrawdownPercent)
	assert.True(t, decimal.NewFromInt(1000).Equal(m.FinalCapital))
	assert.True(t, m.TotalPnL.IsZero())
}

func TestRun_Deterministic(t *testing.T) {
	cfg := config.Backtest{
		InitialCapital:      100000,
		CommissionPercent:   0.03,
		SlippagePercent:     0.05,
		PositionSizePercent: 10,
		MaxPositions:        1,
		AllowShort:          true,
	}
	candles := wave("SYM", 400)

	encode := func() []byte {
		s, err := strategy.NewEMACrossover(config.EMACrossover{Fast: 5, Slow: 13})
		require.NoError(t, err)

		res := runEngine(t, cfg, candles, s)
		require.NotEmpty(t, res.Trades)

		b, err := json.Marshal(res)
		require.NoError(t, err)
		return b
	}

	first := encode()
	for range 3 {
		assert.Equal(t, first, encode())
	}
}

func TestSweep(t *testing.T) {
	factory, err := strategy.NewFactory(config.StrategyReference{Strategy: config.EMACrossover{Fast: 3, Slow: 8}})
	require.NoError(t, err)

	symbols := []string{"A", "B", "C", "D", "E"}
	jobs := make([]Job, len(symbols))
	for i, sym := range symbols {
		cfg := frictionless()
		cfg.PositionSizePercent = float64(10 * (i + 1))
		jobs[i] = Job{Symbol: sym, Candles: wave(sym, 200), Config: cfg, NewStrategy: factory}
	}

	results, err := Sweep(context.Background(), discard, jobs, 2)
	require.NoError(t, err)
	require.Len(t, results, len(jobs))

	for i, res := range results {
		assert.Equal(t, symbols[i], res.Symbol)

		e, err := NewEngine(discard, jobs[i].Config)
		require.NoError(t, err)

		single, err := e.Run(context.Background(), symbols[i], jobs[i].Candles, mustNew(t, factory))
		require.NoError(t, err)
		assert.Equal(t, single.Metrics, res.Metrics)
	}
}

func mustNew(t *testing.T, f strategy.Factory) strategy.Strategy {
	s, err := f()
	require.NoError(t, err)
	return s
}

func TestSweep_FailingJob(t *testing.T) {
	factory := func() (strategy.Strategy, error) { return &scripted{}, nil }

	bad := frictionless()
	bad.MaxPositions = 0

	jobs := []Job{
		{Symbol: "A", Candles: series("A", 1, 2), Config: frictionless(), NewStrategy: factory},
		{Symbol: "B", Candles: series("B", 1, 2), Config: bad, NewStrategy: factory},
	}

	_, err := Sweep(context.Background(), discard, jobs, 0)
	require.ErrorIs(t, err, market.ErrInvalidParameters)
}

func TestReport(t *testing.T) {
	r := NewReport(discard)

	s := &scripted{signals: map[int]market.Side{0: market.Buy, 2: market.Sell}}
	r.Submit(runEngine(t, frictionless(), series("SYM", 10, 11, 12), s))
	r.Submit(runEngine(t, frictionless(), series("SYM", 10, 11, 12), &scripted{}))

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))

	var got struct {
		TotalPnL    string `json:"total_pnl"`
		TotalTrades int    `json:"total_trades"`
		Runs        []struct {
			Symbol  string             `json:"symbol"`
			Trades  []accounting.Trade `json:"trades"`
			Metrics Metrics            `json:"metrics"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, "200", got.TotalPnL)
	assert.Equal(t, 1, got.TotalTrades)
	require.Len(t, got.Runs, 2)
	assert.Equal(t, "SYM", got.Runs[0].Symbol)
	assert.Len(t, got.Runs[0].Trades, 1)
	assert.Len(t, r.Runs(), 2)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, r.WriteToFile(path))
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestPlotEquity(t *testing.T) {
	candles := series("SYM", 10, 11, 12, 13, 12, 11, 10)
	s := &scripted{signals: map[int]market.Side{1: market.Buy, 3: market.Sell, 5: market.Buy}}
	res := runEngine(t, frictionless(), candles, s)

	path := filepath.Join(t.TempDir(), "equity.png")
	require.NoError(t, PlotEquity(path, candles, res))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, st.Size())

	require.Error(t, PlotEquity(path, candles, &Result{Symbol: "SYM"}))
}

func TestPlotEquity_IndicatorPanels(t *testing.T) {
	candles := series("SYM", 10, 11, 12, 13, 12, 11, 10)
	s := &scripted{signals: map[int]market.Side{1: market.Buy, 3: market.Sell}}
	res := runEngine(t, frictionless(), candles, s)
	require.Equal(t, s.Indicators(), res.Indicators)

	d, err := equityPlot(candles, res)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())

	// a window longer than the series still gets an empty panel
	res.Indicators = append(res.Indicators,
		indicator.Spec{Kind: indicator.KindBollinger, Period: 50, StdDev: 2},
		indicator.Spec{Kind: indicator.KindMACD, Fast: 2, Slow: 3, Signal: 2})
	d, err = equityPlot(candles, res)
	require.NoError(t, err)
	assert.Equal(t, 5, d.Len())

	path := filepath.Join(t.TempDir(), "equity.png")
	require.NoError(t, PlotEquity(path, candles, res))

	d, err = equityPlot(nil, res)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())

	res.Indicators = []indicator.Spec{{Kind: indicator.KindSMA}}
	_, err = equityPlot(candles, res)
	require.ErrorIs(t, err, market.ErrInvalidParameters)
}
