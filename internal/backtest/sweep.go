package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/gamma-omg/algo-engine/internal/strategy"
	"golang.org/x/sync/errgroup"
)

// Job is one independent backtest run.
type Job struct {
	Symbol      string
	Candles     []market.Candle
	Config      config.Backtest
	NewStrategy strategy.Factory
}

// Sweep runs jobs concurrently, at most parallelism at a time, and returns
// results in job order. Jobs share no mutable state. The first failing job
// cancels the rest.
func Sweep(ctx context.Context, log *slog.Logger, jobs []Job, parallelism int) ([]*Result, error) {
	results := make([]*Result, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}

	for i, job := range jobs {
		g.Go(func() error {
			e, err := NewEngine(log, job.Config)
			if err != nil {
				return fmt.Errorf("failed to create engine for %s: %w", job.Symbol, err)
			}

			s, err := job.NewStrategy()
			if err != nil {
				return fmt.Errorf("failed to create strategy for %s: %w", job.Symbol, err)
			}

			res, err := e.Run(ctx, job.Symbol, job.Candles, s)
			if err != nil {
				return fmt.Errorf("backtest of %s failed: %w", job.Symbol, err)
			}

			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
