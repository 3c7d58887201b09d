package store

import (
	"context"
	"log/slog"

	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/market"
)

// Source serves stored candles. The [Start, End) window is the backtest
// series and the replayed live feed; candles before Start are warm-up
// history.
type Source struct {
	log *slog.Logger
	db  *Store
	cfg config.SQL
}

func NewSource(log *slog.Logger, db *Store, cfg config.SQL) *Source {
	return &Source{log: log, db: db, cfg: cfg}
}

func (s *Source) Candles(ctx context.Context, symbol string) ([]market.Candle, error) {
	candles, err := s.db.LoadCandles(ctx, symbol, s.cfg.Start, s.cfg.End)
	if err != nil {
		return nil, err
	}

	s.log.Debug("candles loaded", slog.String("symbol", symbol), slog.Int("count", len(candles)))
	return candles, nil
}

func (s *Source) History(ctx context.Context, symbol string, count int) ([]market.Candle, error) {
	if s.cfg.Start.IsZero() {
		return nil, nil
	}
	return s.db.LastCandles(ctx, symbol, s.cfg.Start, count)
}

func (s *Source) Stream(ctx context.Context, symbol string) (<-chan market.Candle, <-chan error) {
	candles := make(chan market.Candle)
	errs := make(chan error, 1)

	go func() {
		defer close(candles)
		defer close(errs)

		series, err := s.Candles(ctx, symbol)
		if err != nil {
			errs <- err
			return
		}

		for _, c := range series {
			select {
			case <-ctx.Done():
				return
			case candles <- c:
			}
		}
	}()

	return candles, errs
}
