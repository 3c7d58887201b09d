package emulator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/gamma-omg/algo-engine/internal/markethours"
)

// Replay serves CSV candle files as a candle source. Candles inside the
// configured [Start, End) window are replayed as the live stream or
// returned as a backtest series; candles before Start serve as warm-up
// history.
type Replay struct {
	log *slog.Logger
	cfg config.CSV
}

func NewReplay(log *slog.Logger, cfg config.CSV) (*Replay, error) {
	if len(cfg.Data) == 0 {
		return nil, fmt.Errorf("%w: csv source has no data files", market.ErrInvalidParameters)
	}

	for symbol, path := range cfg.Data {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("failed to open candle data for %s: %w", symbol, err)
		}
	}

	return &Replay{log: log, cfg: cfg}, nil
}

func (r *Replay) Symbols() []string {
	res := make([]string, 0, len(r.cfg.Data))
	for s := range r.cfg.Data {
		res = append(res, s)
	}
	sort.Strings(res)
	return res
}

func (r *Replay) reader(symbol string, filter candleFilter) (*candleReader, error) {
	path, ok := r.cfg.Data[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol: %s", symbol)
	}

	return newCandleReaderWithFilter(path, symbol, func(c market.Candle) bool {
		if r.cfg.SessionOnly && !markethours.IsMarketOpen(c.Time) {
			return false
		}
		return filter(c)
	}), nil
}

func (r *Replay) inWindow(c market.Candle) bool {
	if !r.cfg.Start.IsZero() && c.Time.Before(r.cfg.Start) {
		return false
	}
	if !r.cfg.End.IsZero() && !c.Time.Before(r.cfg.End) {
		return false
	}
	return true
}

// Candles returns the replay window of symbol ordered by time.
func (r *Replay) Candles(ctx context.Context, symbol string) ([]market.Candle, error) {
	rdr, err := r.reader(symbol, r.inWindow)
	if err != nil {
		return nil, err
	}

	candles, err := rdr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read candles for %s: %w", symbol, err)
	}

	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	r.log.Debug("candles loaded", slog.String("symbol", symbol), slog.Int("count", len(candles)))
	return candles, ctx.Err()
}

// History returns up to count candles preceding the replay window.
func (r *Replay) History(ctx context.Context, symbol string, count int) ([]market.Candle, error) {
	if r.cfg.Start.IsZero() {
		return nil, nil
	}

	rdr, err := r.reader(symbol, func(c market.Candle) bool { return c.Time.Before(r.cfg.Start) })
	if err != nil {
		return nil, err
	}

	candles, err := rdr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", symbol, err)
	}

	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}

	return candles, ctx.Err()
}

// Stream replays the window of symbol in file order.
func (r *Replay) Stream(ctx context.Context, symbol string) (<-chan market.Candle, <-chan error) {
	candles := make(chan market.Candle)
	errs := make(chan error, 1)

	rdr, err := r.reader(symbol, r.inWindow)
	if err != nil {
		errs <- err
		close(errs)
		close(candles)
		return candles, errs
	}

	go func() {
		defer close(candles)
		defer close(errs)

		for c := range rdr.Read(ctx) {
			if c.err != nil {
				errs <- c.err
				return
			}

			select {
			case <-ctx.Done():
				return
			case candles <- c.candle:
			}
		}
	}()

	return candles, errs
}
