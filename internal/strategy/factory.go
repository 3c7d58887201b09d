package strategy

import (
	"fmt"

	"github.com/gamma-omg/algo-engine/internal/config"
)

func New(ref config.StrategyReference) (Strategy, error) {
	switch cfg := ref.Strategy.(type) {
	case config.EMACrossover:
		return NewEMACrossover(cfg)
	case config.RSIReversion:
		return NewRSIReversion(cfg)
	case config.MACD:
		return NewMACDCross(cfg)
	case config.Supertrend:
		return NewSupertrendFollow(cfg)
	case config.Ensemble:
		children := make([]Weighted, len(cfg.Strategies))
		for i, c := range cfg.Strategies {
			child, err := New(c.Ref)
			if err != nil {
				return nil, fmt.Errorf("failed to create child strategy: %w", err)
			}

			children[i] = Weighted{Weight: c.Weight, Strategy: child}
		}

		return &Ensemble{Children: children, MinConfidence: cfg.MinConfidence}, nil
	}

	return nil, fmt.Errorf("unknown strategy: %v", ref)
}

// NewFactory validates ref once and returns a Factory producing fresh
// instances of it.
func NewFactory(ref config.StrategyReference) (Factory, error) {
	if _, err := New(ref); err != nil {
		return nil, err
	}

	return func() (Strategy, error) { return New(ref) }, nil
}
