package accounting

import (
	"fmt"

	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/market"
)

// Validate checks a backtest config before any state is created from it.
func Validate(cfg config.Backtest) error {
	switch {
	case cfg.InitialCapital <= 0:
		return fmt.Errorf("%w: initial_capital must be positive, got %v", market.ErrInvalidParameters, cfg.InitialCapital)
	case cfg.CommissionPercent < 0:
		return fmt.Errorf("%w: commission_percent must not be negative, got %v", market.ErrInvalidParameters, cfg.CommissionPercent)
	case cfg.SlippagePercent < 0:
		return fmt.Errorf("%w: slippage_percent must not be negative, got %v", market.ErrInvalidParameters, cfg.SlippagePercent)
	case cfg.PositionSizePercent <= 0 || cfg.PositionSizePercent > 100:
		return fmt.Errorf("%w: position_size_percent must be in (0, 100], got %v", market.ErrInvalidParameters, cfg.PositionSizePercent)
	case cfg.MaxPositions < 1:
		return fmt.Errorf("%w: max_positions must be at least 1, got %d", market.ErrInvalidParameters, cfg.MaxPositions)
	case cfg.StopLossPercent < 0 || cfg.TakeProfitPercent < 0:
		return fmt.Errorf("%w: stop loss and take profit must not be negative", market.ErrInvalidParameters)
	}

	return nil
}
