package accounting

import (
	"fmt"
	"sort"
	"time"

	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/shopspring/decimal"
)

// Accountant turns entry and exit intents into sized positions and
// immutable trades. It owns the capital, peak and equity of one run and is
// not shared between runs.
type Accountant struct {
	cfg        config.Backtest
	acc        *account
	sizer      market.PercentSizer
	slippage   slippage
	commission fixedRateCommission
	peak       decimal.Decimal
	open       map[uint64]Position
	nextID     uint64
	trades     []Trade
	equity     []EquityPoint
}

func New(cfg config.Backtest) (*Accountant, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	initial := decimal.NewFromFloat(cfg.InitialCapital)
	return &Accountant{
		cfg:        cfg,
		acc:        newAccount(initial),
		sizer:      market.PercentSizer{Percent: decimal.NewFromFloat(cfg.PositionSizePercent)},
		slippage:   newSlippage(cfg.SlippagePercent),
		commission: newFixedRateCommission(cfg.CommissionPercent),
		peak:       initial,
		open:       make(map[uint64]Position),
	}, nil
}

// Open sizes and reserves a new position. It changes nothing on failure.
func (a *Accountant) Open(symbol string, side market.Side, refPrice decimal.Decimal, t time.Time) (Position, error) {
	if !side.Valid() {
		return Position{}, fmt.Errorf("%w: side %q", market.ErrInvalidParameters, side)
	}

	if !refPrice.IsPositive() {
		return Position{}, fmt.Errorf("%w: reference price %s", market.ErrInvalidParameters, refPrice)
	}

	if len(a.open) >= a.cfg.MaxPositions {
		return Position{}, fmt.Errorf("%w: %d open", market.ErrMaxPositions, len(a.open))
	}

	entry := a.slippage.Apply(side, refPrice)
	if !entry.IsPositive() {
		return Position{}, fmt.Errorf("%w: slippage leaves no entry price", market.ErrInvalidParameters)
	}

	qty, err := a.sizer.Quantity(a.acc.Balance(), entry)
	if err != nil {
		return Position{}, fmt.Errorf("failed to size position: %w", err)
	}

	available := a.acc.Available()
	perUnit := entry.Add(a.commission.Charge(entry, 1))
	if limit := available.Div(perUnit).Floor().IntPart(); qty > limit {
		qty = limit
	}

	if qty <= 0 {
		return Position{}, fmt.Errorf("%w: %s available for %s at %s", market.ErrInsufficientCapital, available, symbol, entry)
	}

	p := Position{
		ID:             a.nextID + 1,
		Symbol:         symbol,
		Side:           side,
		ReferencePrice: refPrice,
		EntryPrice:     entry,
		Quantity:       qty,
		EntryTime:      t,
		Commission:     a.commission.Charge(entry, qty),
		Slippage:       entry.Sub(refPrice).Abs().Mul(decimal.NewFromInt(qty)),
	}

	if err := a.acc.Reserve(p.Margin()); err != nil {
		return Position{}, fmt.Errorf("failed to reserve capital: %w", err)
	}

	a.nextID = p.ID
	a.open[p.ID] = p
	return p, nil
}

// Close settles a position issued by Open and records the trade and a new
// equity point. It changes nothing on failure.
func (a *Accountant) Close(p Position, exitRef decimal.Decimal, exitTime time.Time, reason string) (Trade, error) {
	held, ok := a.open[p.ID]
	if !ok || held.Symbol != p.Symbol || held.Side != p.Side || held.Quantity != p.Quantity {
		return Trade{}, fmt.Errorf("%w: position %d for %s", market.ErrMismatchedClose, p.ID, p.Symbol)
	}

	if !exitRef.IsPositive() {
		return Trade{}, fmt.Errorf("%w: exit price %s", market.ErrInvalidParameters, exitRef)
	}

	if exitTime.Before(held.EntryTime) {
		return Trade{}, fmt.Errorf("%w: exit %s before entry %s", market.ErrInvalidParameters, exitTime, held.EntryTime)
	}

	if n := len(a.equity); n > 0 && exitTime.Before(a.equity[n-1].Time) {
		return Trade{}, fmt.Errorf("%w: exit %s before last settlement %s", market.ErrInvalidParameters, exitTime, a.equity[n-1].Time)
	}

	exitSide := held.Side.Opposite()
	exit := a.slippage.Apply(exitSide, exitRef)
	qty := decimal.NewFromInt(held.Quantity)

	commission := held.Commission.Add(a.commission.Charge(exit, held.Quantity))
	gross := exit.Sub(held.EntryPrice).Mul(qty).Mul(decimal.NewFromInt(held.Side.Sign()))
	pnl := gross.Sub(commission)

	// shorts have no natural loss bound; cap them at the held margin so
	// capital stays non-negative
	if floor := held.Margin().Neg(); pnl.LessThan(floor) {
		pnl = floor
	}

	pnlPct := 0.0
	if cost := held.Cost(); !cost.IsZero() {
		pnlPct = pnl.Div(cost).Mul(hundred).InexactFloat64()
	}

	tr := Trade{
		Symbol:     held.Symbol,
		Side:       held.Side,
		EntryTime:  held.EntryTime,
		ExitTime:   exitTime,
		EntryPrice: held.EntryPrice,
		ExitPrice:  exit,
		Quantity:   held.Quantity,
		PnL:        pnl,
		PnLPercent: pnlPct,
		Commission: commission,
		Slippage:   held.Slippage.Add(exit.Sub(exitRef).Abs().Mul(qty)),
		ExitReason: reason,
	}

	capital, err := a.acc.Settle(held.Margin(), pnl)
	if err != nil {
		return Trade{}, fmt.Errorf("failed to settle position %d: %w", held.ID, err)
	}

	if capital.GreaterThan(a.peak) {
		a.peak = capital
	}

	dd := 0.0
	if a.peak.IsPositive() {
		dd = a.peak.Sub(capital).Div(a.peak).Mul(hundred).InexactFloat64()
	}

	delete(a.open, held.ID)
	a.trades = append(a.trades, tr)
	a.equity = append(a.equity, EquityPoint{
		Time:            exitTime,
		Equity:          capital,
		DrawdownPercent: max(dd, 0),
	})

	return tr, nil
}

// Positions returns open positions in the order they were opened.
func (a *Accountant) Positions() []Position {
	res := make([]Position, 0, len(a.open))
	for _, p := range a.open {
		res = append(res, p)
	}

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// PositionFor returns the oldest open position for symbol.
func (a *Accountant) PositionFor(symbol string) (Position, bool) {
	for _, p := range a.Positions() {
		if p.Symbol == symbol {
			return p, true
		}
	}

	return Position{}, false
}

func (a *Accountant) Capital() decimal.Decimal {
	return a.acc.Balance()
}

func (a *Accountant) Available() decimal.Decimal {
	return a.acc.Available()
}

func (a *Accountant) Peak() decimal.Decimal {
	return a.peak
}

func (a *Accountant) InitialCapital() decimal.Decimal {
	return decimal.NewFromFloat(a.cfg.InitialCapital)
}

func (a *Accountant) Ledger() []Trade {
	res := make([]Trade, len(a.trades))
	copy(res, a.trades)
	return res
}

func (a *Accountant) Equity() []EquityPoint {
	res := make([]EquityPoint, len(a.equity))
	copy(res, a.equity)
	return res
}
