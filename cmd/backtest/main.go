package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gamma-omg/algo-engine/internal/backtest"
	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/platform"
	"github.com/gamma-omg/algo-engine/internal/store"
	"github.com/gamma-omg/algo-engine/internal/strategy"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, slog.Default()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load(os.Getenv("CONFIG"), ".env")
	if err != nil {
		return err
	}

	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}

	newStrategy, err := strategy.NewFactory(cfg.StrategyRef)
	if err != nil {
		return err
	}

	var db *store.Store
	if cfg.Store.DSN != "" {
		db, err = store.Open(ctx, logger, cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	src, err := platform.Create(logger, *cfg, db)
	if err != nil {
		return err
	}

	jobs := make([]backtest.Job, 0, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		candles, err := src.Candles(ctx, symbol)
		if err != nil {
			return fmt.Errorf("failed to load candles for %s: %w", symbol, err)
		}

		jobs = append(jobs, backtest.Job{
			Symbol:      symbol,
			Candles:     candles,
			Config:      cfg.Backtest,
			NewStrategy: newStrategy,
		})
	}

	results, err := backtest.Sweep(ctx, logger, jobs, cfg.Backtest.Parallelism)
	if err != nil {
		return err
	}

	report := backtest.NewReport(logger)
	for _, res := range results {
		report.Submit(res)
	}

	if cfg.Backtest.Report != "" {
		if err := report.WriteToFile(cfg.Backtest.Report); err != nil {
			return err
		}
	}

	if dir := cfg.Backtest.PlotDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create plot dir: %w", err)
		}

		for i, res := range results {
			if len(res.Equity) == 0 {
				continue
			}

			name := strings.ReplaceAll(res.Symbol, "/", "_") + ".png"
			if err := backtest.PlotEquity(filepath.Join(dir, name), jobs[i].Candles, res); err != nil {
				logger.Error("failed to plot equity", slog.String("symbol", res.Symbol), slog.Any("error", err))
			}
		}
	}

	if db != nil {
		for _, res := range results {
			if _, err := db.SaveRun(ctx, res); err != nil {
				return err
			}
		}
	}

	printSummary(os.Stdout, results)
	return nil
}

func printSummary(w io.Writer, results []*backtest.Result) {
	p := message.NewPrinter(language.MustParse("en-IN"))

	p.Fprintf(w, "%-14s %-16s %7s %16s %9s %8s %8s %9s\n",
		"SYMBOL", "STRATEGY", "TRADES", "PNL", "RETURN%", "WIN%", "SHARPE", "MAX_DD%")

	for _, res := range results {
		m := res.Metrics
		pnl, _ := m.TotalPnL.Float64()
		p.Fprintf(w, "%-14s %-16s %7d %16.2f %9.2f %8.2f %8.2f %9.2f\n",
			res.Symbol, res.Strategy, m.TotalTrades, pnl,
			m.TotalReturnPercent, m.WinRate, m.SharpeRatio, m.MaxDrawdownPercent)
	}
}
