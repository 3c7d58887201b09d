// Package store persists backtest runs and candle series in SQLite or
// PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gamma-omg/algo-engine/internal/accounting"
	"github.com/gamma-omg/algo-engine/internal/backtest"
	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT NOT NULL,
		ts     BIGINT NOT NULL,
		open   TEXT NOT NULL,
		high   TEXT NOT NULL,
		low    TEXT NOT NULL,
		close  TEXT NOT NULL,
		volume BIGINT NOT NULL,
		PRIMARY KEY (symbol, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id              TEXT PRIMARY KEY,
		symbol          TEXT NOT NULL,
		strategy        TEXT NOT NULL,
		created_at      BIGINT NOT NULL,
		candles         INTEGER NOT NULL,
		initial_capital TEXT NOT NULL,
		final_capital   TEXT NOT NULL,
		total_trades    INTEGER NOT NULL,
		metrics         TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		run_id      TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		entry_time  BIGINT NOT NULL,
		exit_time   BIGINT NOT NULL,
		entry_price TEXT NOT NULL,
		exit_price  TEXT NOT NULL,
		quantity    BIGINT NOT NULL,
		pnl         TEXT NOT NULL,
		pnl_percent DOUBLE PRECISION NOT NULL,
		commission  TEXT NOT NULL,
		slippage    TEXT NOT NULL,
		exit_reason TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS equity (
		run_id           TEXT NOT NULL,
		seq              INTEGER NOT NULL,
		ts               BIGINT NOT NULL,
		equity           TEXT NOT NULL,
		drawdown_percent DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
}

type Store struct {
	log *slog.Logger
	db  *sqlx.DB
}

// Open connects to the configured database and applies the schema. An
// empty driver selects SQLite.
func Open(ctx context.Context, log *slog.Logger, cfg config.Store) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	dsn := cfg.DSN
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: unsupported store driver %q", market.ErrInvalidParameters, driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s store: %w", driver, err)
	}

	s := &Store{log: log, db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("store opened", slog.String("driver", driver))
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type candleRow struct {
	Symbol string          `db:"symbol"`
	Ts     int64           `db:"ts"`
	Open   decimal.Decimal `db:"open"`
	High   decimal.Decimal `db:"high"`
	Low    decimal.Decimal `db:"low"`
	Close  decimal.Decimal `db:"close"`
	Volume int64           `db:"volume"`
}

func (r candleRow) candle() market.Candle {
	return market.Candle{
		Symbol: r.Symbol,
		Time:   time.Unix(r.Ts, 0),
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
	}
}

const upsertCandle = `INSERT INTO candles (symbol, ts, open, high, low, close, volume)
	VALUES (:symbol, :ts, :open, :high, :low, :close, :volume)
	ON CONFLICT (symbol, ts) DO UPDATE SET
		open = excluded.open, high = excluded.high, low = excluded.low,
		close = excluded.close, volume = excluded.volume`

// SaveCandles upserts candles keyed by symbol and timestamp in one
// transaction.
func (s *Store) SaveCandles(ctx context.Context, candles []market.Candle) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return err
		}

		row := candleRow{
			Symbol: c.Symbol,
			Ts:     c.Time.Unix(),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		}
		if _, err := tx.NamedExecContext(ctx, upsertCandle, row); err != nil {
			return fmt.Errorf("failed to save candle %s@%s: %w", c.Symbol, c.Time, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candles: %w", err)
	}
	return nil
}

// LoadCandles returns the candles of symbol in [from, to) ordered by time.
// A zero bound is open.
func (s *Store) LoadCandles(ctx context.Context, symbol string, from, to time.Time) ([]market.Candle, error) {
	query := `SELECT symbol, ts, open, high, low, close, volume FROM candles WHERE symbol = ?`
	args := []any{symbol}
	if !from.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, from.Unix())
	}
	if !to.IsZero() {
		query += ` AND ts < ?`
		args = append(args, to.Unix())
	}
	query += ` ORDER BY ts`

	var rows []candleRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load candles for %s: %w", symbol, err)
	}

	return toCandles(rows), nil
}

// LastCandles returns up to count candles of symbol before t, oldest first.
// A zero t means the newest candles.
func (s *Store) LastCandles(ctx context.Context, symbol string, before time.Time, count int) ([]market.Candle, error) {
	query := `SELECT symbol, ts, open, high, low, close, volume FROM candles WHERE symbol = ?`
	args := []any{symbol}
	if !before.IsZero() {
		query += ` AND ts < ?`
		args = append(args, before.Unix())
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, count)

	var rows []candleRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load last candles for %s: %w", symbol, err)
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return toCandles(rows), nil
}

func toCandles(rows []candleRow) []market.Candle {
	res := make([]market.Candle, len(rows))
	for i, r := range rows {
		res[i] = r.candle()
	}
	return res
}

type runRow struct {
	ID             string          `db:"id"`
	Symbol         string          `db:"symbol"`
	Strategy       string          `db:"strategy"`
	CreatedAt      int64           `db:"created_at"`
	Candles        int             `db:"candles"`
	InitialCapital decimal.Decimal `db:"initial_capital"`
	FinalCapital   decimal.Decimal `db:"final_capital"`
	TotalTrades    int             `db:"total_trades"`
	Metrics        string          `db:"metrics"`
}

type tradeRow struct {
	RunID      string          `db:"run_id"`
	Seq        int             `db:"seq"`
	Symbol     string          `db:"symbol"`
	Side       string          `db:"side"`
	EntryTime  int64           `db:"entry_time"`
	ExitTime   int64           `db:"exit_time"`
	EntryPrice decimal.Decimal `db:"entry_price"`
	ExitPrice  decimal.Decimal `db:"exit_price"`
	Quantity   int64           `db:"quantity"`
	PnL        decimal.Decimal `db:"pnl"`
	PnLPercent float64         `db:"pnl_percent"`
	Commission decimal.Decimal `db:"commission"`
	Slippage   decimal.Decimal `db:"slippage"`
	ExitReason string          `db:"exit_reason"`
}

type equityRow struct {
	RunID           string          `db:"run_id"`
	Seq             int             `db:"seq"`
	Ts              int64           `db:"ts"`
	Equity          decimal.Decimal `db:"equity"`
	DrawdownPercent float64         `db:"drawdown_percent"`
}

// SaveRun stores a backtest result under a new run id.
func (s *Store) SaveRun(ctx context.Context, res *backtest.Result) (string, error) {
	metrics, err := json.Marshal(res.Metrics)
	if err != nil {
		return "", fmt.Errorf("failed to encode metrics: %w", err)
	}

	run := runRow{
		ID:             uuid.New().String(),
		Symbol:         res.Symbol,
		Strategy:       res.Strategy,
		CreatedAt:      time.Now().Unix(),
		Candles:        res.Candles,
		InitialCapital: res.Initial,
		FinalCapital:   res.Metrics.FinalCapital,
		TotalTrades:    res.Metrics.TotalTrades,
		Metrics:        string(metrics),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `INSERT INTO runs
		(id, symbol, strategy, created_at, candles, initial_capital, final_capital, total_trades, metrics)
		VALUES (:id, :symbol, :strategy, :created_at, :candles, :initial_capital, :final_capital, :total_trades, :metrics)`, run)
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	for i, t := range res.Trades {
		row := tradeRow{
			RunID:      run.ID,
			Seq:        i,
			Symbol:     t.Symbol,
			Side:       string(t.Side),
			EntryTime:  t.EntryTime.Unix(),
			ExitTime:   t.ExitTime.Unix(),
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			Quantity:   t.Quantity,
			PnL:        t.PnL,
			PnLPercent: t.PnLPercent,
			Commission: t.Commission,
			Slippage:   t.Slippage,
			ExitReason: t.ExitReason,
		}
		_, err := tx.NamedExecContext(ctx, `INSERT INTO trades
			(run_id, seq, symbol, side, entry_time, exit_time, entry_price, exit_price, quantity, pnl, pnl_percent, commission, slippage, exit_reason)
			VALUES (:run_id, :seq, :symbol, :side, :entry_time, :exit_time, :entry_price, :exit_price, :quantity, :pnl, :pnl_percent, :commission, :slippage, :exit_reason)`, row)
		if err != nil {
			return "", fmt.Errorf("failed to save trade %d: %w", i, err)
		}
	}

	for i, p := range res.Equity {
		row := equityRow{
			RunID:           run.ID,
			Seq:             i,
			Ts:              p.Time.Unix(),
			Equity:          p.Equity,
			DrawdownPercent: p.DrawdownPercent,
		}
		_, err := tx.NamedExecContext(ctx, `INSERT INTO equity (run_id, seq, ts, equity, drawdown_percent)
			VALUES (:run_id, :seq, :ts, :equity, :drawdown_percent)`, row)
		if err != nil {
			return "", fmt.Errorf("failed to save equity point %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}

	s.log.Info("run saved",
		slog.String("run", run.ID),
		slog.String("symbol", run.Symbol),
		slog.Int("trades", len(res.Trades)))

	return run.ID, nil
}

// RunSummary is a stored run without its trades and equity curve.
type RunSummary struct {
	ID           string          `db:"id" json:"id"`
	Symbol       string          `db:"symbol" json:"symbol"`
	Strategy     string          `db:"strategy" json:"strategy"`
	CreatedAt    int64           `db:"created_at" json:"created_at"`
	FinalCapital decimal.Decimal `db:"final_capital" json:"final_capital"`
	TotalTrades  int             `db:"total_trades" json:"total_trades"`
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunSummary, error) {
	var res []RunSummary
	err := s.db.SelectContext(ctx, &res,
		`SELECT id, symbol, strategy, created_at, final_capital, total_trades FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return res, nil
}

// Trades returns the trades of a stored run in ledger order.
func (s *Store) Trades(ctx context.Context, runID string) ([]accounting.Trade, error) {
	var rows []tradeRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT * FROM trades WHERE run_id = ? ORDER BY seq`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades of run %s: %w", runID, err)
	}

	res := make([]accounting.Trade, len(rows))
	for i, r := range rows {
		res[i] = accounting.Trade{
			Symbol:     r.Symbol,
			Side:       market.Side(r.Side),
			EntryTime:  time.Unix(r.EntryTime, 0),
			ExitTime:   time.Unix(r.ExitTime, 0),
			EntryPrice: r.EntryPrice,
			ExitPrice:  r.ExitPrice,
			Quantity:   r.Quantity,
			PnL:        r.PnL,
			PnLPercent: r.PnLPercent,
			Commission: r.Commission,
			Slippage:   r.Slippage,
			ExitReason: r.ExitReason,
		}
	}
	return res, nil
}
