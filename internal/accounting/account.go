package accounting

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/shopspring/decimal"
)

// account tracks settled capital and the part of it held by open positions.
type account struct {
	balance  decimal.Decimal
	reserved decimal.Decimal
	mu       sync.RWMutex
}

func newAccount(balance decimal.Decimal) *account {
	return &account{balance: balance}
}

func (a *account) Balance() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.balance
}

func (a *account) Available() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.balance.Sub(a.reserved)
}

func (a *account) Reserved() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.reserved
}

func (a *account) Reserve(amount decimal.Decimal) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if amount.IsNegative() {
		return errors.New("reserve amount cannot be negative")
	}

	if amount.GreaterThan(a.balance.Sub(a.reserved)) {
		return fmt.Errorf("%w: need %s, available %s", market.ErrInsufficientCapital, amount, a.balance.Sub(a.reserved))
	}

	a.reserved = a.reserved.Add(amount)
	return nil
}

// Settle releases a reservation and books the realized pnl in one step.
func (a *account) Settle(reserved, pnl decimal.Decimal) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if reserved.IsNegative() || reserved.GreaterThan(a.reserved) {
		return a.balance, fmt.Errorf("cannot release %s, reserved %s", reserved, a.reserved)
	}

	a.reserved = a.reserved.Sub(reserved)
	a.balance = a.balance.Add(pnl)
	return a.balance, nil
}
