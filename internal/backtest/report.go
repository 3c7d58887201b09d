package backtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/shopspring/decimal"
)

// Report collects finished runs into one JSON document.
type Report struct {
	log    *slog.Logger
	report JsonReport
	mu     sync.Mutex
}

type JsonReport struct {
	TotalPnL    string    `json:"total_pnl,omitempty"`
	TotalTrades int       `json:"total_trades"`
	Runs        []*Result `json:"runs,omitempty"`
}

func NewReport(log *slog.Logger) *Report {
	return &Report{log: log}
}

func (r *Report) Submit(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.Runs = append(r.report.Runs, res)
	r.report.TotalTrades += res.Metrics.TotalTrades

	total := decimal.Zero
	for _, run := range r.report.Runs {
		total = total.Add(run.Metrics.TotalPnL)
	}
	r.report.TotalPnL = total.String()

	r.log.Info("run submitted",
		slog.String("symbol", res.Symbol),
		slog.String("strategy", res.Strategy),
		slog.Float64("return_pct", res.Metrics.TotalReturnPercent),
		slog.Float64("win_rate", res.Metrics.WinRate),
		slog.Float64("sharpe", res.Metrics.SharpeRatio))
}

func (r *Report) Runs() []*Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*Result(nil), r.report.Runs...)
}

func (r *Report) Write(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	if err := e.Encode(r.report); err != nil {
		return fmt.Errorf("failed to write backtest report: %w", err)
	}

	return nil
}

func (r *Report) WriteToFile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	return r.Write(f)
}
