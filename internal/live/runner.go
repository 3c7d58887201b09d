package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gamma-omg/algo-engine/internal/market"
	"golang.org/x/sync/errgroup"
)

// CandleSource provides the warm-up history and the live feed of a symbol.
type CandleSource interface {
	History(ctx context.Context, symbol string, count int) ([]market.Candle, error)
	Stream(ctx context.Context, symbol string) (<-chan market.Candle, <-chan error)
}

// Runner feeds one goroutine per symbol from a CandleSource into an Engine.
type Runner struct {
	log     *slog.Logger
	engine  *Engine
	source  CandleSource
	symbols []string
	dump    *csvCandleDump
}

func NewRunner(log *slog.Logger, engine *Engine, source CandleSource, symbols []string) *Runner {
	return &Runner{
		log:     log,
		engine:  engine,
		source:  source,
		symbols: symbols,
	}
}

// DumpTo records every received candle as CSV into w.
func (r *Runner) DumpTo(w io.Writer) {
	r.dump = newCsvCandleDump(w)
}

// Run streams all symbols until ctx is done or every feed ends. The warm
// load of a symbol runs next to its stream; candles arriving before it
// completes are queued by the engine.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, symbol := range r.symbols {
		candles, errs := r.source.Stream(ctx, symbol)
		warmed := make(chan struct{})

		g.Go(func() error {
			defer close(warmed)

			history, err := r.source.History(ctx, symbol, r.engine.capacity)
			if err != nil {
				return fmt.Errorf("failed to load history for %s: %w", symbol, err)
			}

			if err := r.engine.LoadInitialBuffer(ctx, symbol, history); err != nil {
				return fmt.Errorf("failed to warm %s: %w", symbol, err)
			}
			return nil
		})

		g.Go(func() error {
			defer func() {
				<-warmed
				r.engine.Stop(symbol)
			}()
			return r.consume(ctx, symbol, candles, errs)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) consume(ctx context.Context, symbol string, candles <-chan market.Candle, errs <-chan error) error {
	log := r.log.With(slog.String("symbol", symbol))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("candle stream for %s failed: %w", symbol, err)
			}
		case c, ok := <-candles:
			if !ok {
				if errs != nil {
					if err := <-errs; err != nil && !errors.Is(err, context.Canceled) {
						return fmt.Errorf("candle stream for %s failed: %w", symbol, err)
					}
				}
				log.Info("candle stream ended")
				return nil
			}

			c.Symbol = symbol
			if r.dump != nil {
				if err := r.dump.Dump(c); err != nil {
					log.Error("failed to dump candle", slog.Any("error", err))
				}
			}

			_, err := r.engine.OnNewCandle(ctx, c)
			switch {
			case err == nil:
			case errors.Is(err, market.ErrBufferNotWarmed):
				log.Debug("candle queued until warm", slog.Time("time", c.Time))
			case errors.Is(err, market.ErrStaleCandle):
				log.Warn("stale candle dropped", slog.Time("time", c.Time))
			default:
				log.Error("failed to process candle", slog.Any("error", err))
			}
		}
	}
}
