package alpaca

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/shopspring/decimal"
)

type aggregator interface {
	Aggregate(candles <-chan market.Candle) <-chan market.Candle
}

// Source serves Alpaca crypto minute bars, resampled to the configured
// timeframe.
type Source struct {
	log       *slog.Logger
	api       barsApi
	cfg       config.Alpaca
	timeframe time.Duration
	agg       aggregator
	now       func() time.Time
}

func NewSource(log *slog.Logger, cfg config.Alpaca, timeframe time.Duration) *Source {
	return newSource(log, newAlpacaApi(cfg), cfg, timeframe)
}

func newSource(log *slog.Logger, api barsApi, cfg config.Alpaca, timeframe time.Duration) *Source {
	var agg aggregator = &market.IdentityAggregator{}
	if timeframe > time.Minute {
		agg = &market.IntervalAggregator{CandleDuration: time.Minute, Interval: timeframe}
	} else {
		timeframe = time.Minute
	}

	return &Source{
		log:       log,
		api:       api,
		cfg:       cfg,
		timeframe: timeframe,
		agg:       agg,
		now:       time.Now,
	}
}

// History returns up to count candles closed before now. The lookback is
// the configured history or count candles, whichever is longer.
func (s *Source) History(ctx context.Context, symbol string, count int) ([]market.Candle, error) {
	end := s.now()
	lookback := time.Duration(count) * s.timeframe
	if s.cfg.History > lookback {
		lookback = s.cfg.History
	}

	candles, err := s.fetch(ctx, symbol, end.Add(-lookback), end)
	if err != nil {
		return nil, err
	}

	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	if len(candles) < count {
		s.log.Warn("short history",
			slog.String("symbol", symbol),
			slog.Int("requested", count),
			slog.Int("received", len(candles)))
	}

	return candles, nil
}

// Candles returns the configured [Start, End) window. A zero End means now
// and a zero Start means End minus the configured history.
func (s *Source) Candles(ctx context.Context, symbol string) ([]market.Candle, error) {
	end := s.cfg.End
	if end.IsZero() {
		end = s.now()
	}

	start := s.cfg.Start
	if start.IsZero() {
		if s.cfg.History <= 0 {
			return nil, fmt.Errorf("%w: alpaca source needs start or history", market.ErrInvalidParameters)
		}
		start = end.Add(-s.cfg.History)
	}

	return s.fetch(ctx, symbol, start, end)
}

func (s *Source) fetch(ctx context.Context, symbol string, start, end time.Time) ([]market.Candle, error) {
	bars, err := s.api.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
		TimeFrame: marketdata.OneMin,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get crypto bars for %s: %w", symbol, err)
	}

	in := make(chan market.Candle)
	go func() {
		defer close(in)
		for _, b := range bars {
			select {
			case <-ctx.Done():
				return
			case in <- toCandle(symbol, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume):
			}
		}
	}()

	res := make([]market.Candle, 0, len(bars))
	for c := range s.agg.Aggregate(in) {
		res = append(res, c)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return res, nil
}

// Stream subscribes to live minute bars of symbol. The returned channels
// are closed when the subscription terminates.
func (s *Source) Stream(ctx context.Context, symbol string) (<-chan market.Candle, <-chan error) {
	bars, errs := s.api.GetCryptoBarsStream(ctx, symbol)

	in := make(chan market.Candle)
	out := make(chan error, 1)

	go func() {
		defer close(in)
		defer close(out)

		for bars != nil || errs != nil {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				if err != nil {
					s.log.Error("crypto bars stream failed", slog.String("symbol", symbol), slog.Any("error", err))
					select {
					case out <- err:
					default:
					}
				}
			case b, ok := <-bars:
				if !ok {
					bars = nil
					continue
				}
				select {
				case <-ctx.Done():
					return
				case in <- streamCandle(symbol, b):
				}
			}
		}
	}()

	return s.agg.Aggregate(in), out
}

func streamCandle(symbol string, b stream.CryptoBar) market.Candle {
	return toCandle(symbol, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume)
}

// toCandle rounds the fractional crypto volume to whole units.
func toCandle(symbol string, t time.Time, o, h, l, c, v float64) market.Candle {
	return market.Candle{
		Symbol: symbol,
		Time:   t,
		Open:   decimal.NewFromFloat(o),
		High:   decimal.NewFromFloat(h),
		Low:    decimal.NewFromFloat(l),
		Close:  decimal.NewFromFloat(c),
		Volume: decimal.NewFromFloat(v).Round(0).IntPart(),
	}
}
