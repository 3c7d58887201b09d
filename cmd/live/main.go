package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/live"
	"github.com/gamma-omg/algo-engine/internal/ops"
	"github.com/gamma-omg/algo-engine/internal/platform"
	"github.com/gamma-omg/algo-engine/internal/sink"
	"github.com/gamma-omg/algo-engine/internal/store"
	"github.com/gamma-omg/algo-engine/internal/strategy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := live.NewMetrics(reg)

	hub := sink.NewHub(logger)
	defer hub.Close()

	sinks := sink.Fanout{sink.NewLogSink(logger), hub}
	if cfg.Redis.Addr != "" {
		rs, err := sink.NewRedisSink(ctx, logger, cfg.Redis)
		if err != nil {
			return err
		}
		defer rs.Close()
		sinks = append(sinks, rs)
	}

	engine, err := live.NewEngine(logger, cfg.Live, newStrategy, sinks, metrics)
	if err != nil {
		return err
	}
	defer engine.Close()

	runner := live.NewRunner(logger, engine, src, cfg.Symbols)
	if cfg.Live.DataDump != "" {
		f, err := os.Create(cfg.Live.DataDump)
		if err != nil {
			return fmt.Errorf("failed to create data dump: %w", err)
		}
		defer f.Close()
		runner.DumpTo(f)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Ops.Addr != "" {
		deps := ops.Deps{
			Status:   engine,
			Gatherer: reg,
			Signals:  hub,
		}
		if db != nil {
			deps.Runs = db
		}

		srv := ops.NewServer(logger, cfg.Ops.Addr, deps)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
	}

	g.Go(func() error {
		defer cancel()
		return runner.Run(ctx)
	})

	return g.Wait()
}
