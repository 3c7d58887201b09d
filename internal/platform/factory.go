package platform

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/gamma-omg/algo-engine/internal/platform/alpaca"
	"github.com/gamma-omg/algo-engine/internal/platform/emulator"
	"github.com/gamma-omg/algo-engine/internal/store"
)

// Source feeds both engines: History and Stream drive the live engine,
// Candles returns a finite series for backtests.
type Source interface {
	History(ctx context.Context, symbol string, count int) ([]market.Candle, error)
	Stream(ctx context.Context, symbol string) (<-chan market.Candle, <-chan error)
	Candles(ctx context.Context, symbol string) ([]market.Candle, error)
}

// Create builds the configured candle source. The sql source reads from db,
// which must be non-nil for it.
func Create(log *slog.Logger, cfg config.Config, db *store.Store) (Source, error) {
	switch src := cfg.SourceRef.Source.(type) {
	case config.CSV:
		return emulator.NewReplay(log, src)
	case config.Alpaca:
		return alpaca.NewSource(log, src, cfg.Timeframe), nil
	case config.SQL:
		if db == nil {
			return nil, errors.New("sql source requires a configured store")
		}
		return store.NewSource(log, db, src), nil
	}

	return nil, errors.New("unknown candle source")
}
