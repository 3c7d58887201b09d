// Package sink delivers order intents produced by the live engine.
package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gamma-omg/algo-engine/internal/strategy"
)

type Sink interface {
	Publish(ctx context.Context, s strategy.Signal) error
}

// LogSink writes every intent to the log.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (l *LogSink) Publish(_ context.Context, s strategy.Signal) error {
	l.log.Info("order intent",
		slog.String("id", s.ID),
		slog.String("symbol", s.Symbol),
		slog.String("side", string(s.Side)),
		slog.String("price", s.ReferencePrice.String()),
		slog.String("reason", s.Reason),
		slog.Float64("confidence", s.Confidence),
		slog.Time("time", s.Time))
	return nil
}

// Fanout delivers an intent to every sink. All sinks are tried even when
// some fail.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, s strategy.Signal) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Publish(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
