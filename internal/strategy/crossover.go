package strategy

import (
	"fmt"

	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/indicator"
	"github.com/gamma-omg/algo-engine/internal/market"
)

// EMACrossover buys when the fast EMA crosses above the slow one and sells
// on the opposite cross.
type EMACrossover struct {
	fast  indicator.Spec
	slow  indicator.Spec
	cross crossState
}

func NewEMACrossover(cfg config.EMACrossover) (*EMACrossover, error) {
	if cfg.Fast <= 0 || cfg.Fast >= cfg.Slow {
		return nil, fmt.Errorf("%w: ema crossover fast %d slow %d", market.ErrInvalidParameters, cfg.Fast, cfg.Slow)
	}

	return &EMACrossover{
		fast: indicator.Spec{Kind: indicator.KindEMA, Period: cfg.Fast},
		slow: indicator.Spec{Kind: indicator.KindEMA, Period: cfg.Slow},
	}, nil
}

func (s *EMACrossover) Name() string {
	return fmt.Sprintf("ema_crossover_%d_%d", s.fast.Period, s.slow.Period)
}

func (s *EMACrossover) Indicators() []indicator.Spec {
	return []indicator.Spec{s.fast, s.slow}
}

func (s *EMACrossover) OnStart(string) error {
	s.cross.reset()
	return nil
}

func (s *EMACrossover) OnStop() {}

func (s *EMACrossover) OnCandle(c market.Candle, ind indicator.Snapshot) *Signal {
	fast, ok1 := ind.Value(s.fast.Key())
	slow, ok2 := ind.Value(s.slow.Key())
	if !ok1 || !ok2 {
		return nil
	}

	switch s.cross.update(fast - slow) {
	case 1:
		return newSignal(c, market.Buy, "ema_cross_up", 1)
	case -1:
		return newSignal(c, market.Sell, "ema_cross_down", 1)
	}
	return nil
}

func (s *EMACrossover) OnTick(market.Tick) *Signal { return nil }

// MACDCross trades histogram zero crosses once the histogram is beyond a
// threshold. Confidence grows linearly from the threshold to the cap.
type MACDCross struct {
	cfg  config.MACD
	spec indicator.Spec
	hist []float64
}

func NewMACDCross(cfg config.MACD) (*MACDCross, error) {
	spec := indicator.Spec{Kind: indicator.KindMACD, Fast: cfg.Fast, Slow: cfg.Slow, Signal: cfg.Signal}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if cfg.CrossLookback <= 0 {
		cfg.CrossLookback = 1
	}

	return &MACDCross{cfg: cfg, spec: spec}, nil
}

func (s *MACDCross) Name() string {
	return "macd_cross"
}

func (s *MACDCross) Indicators() []indicator.Spec {
	return []indicator.Spec{s.spec}
}

func (s *MACDCross) OnStart(string) error {
	s.hist = s.hist[:0]
	return nil
}

func (s *MACDCross) OnStop() {}

func (s *MACDCross) OnCandle(c market.Candle, ind indicator.Snapshot) *Signal {
	h, ok := ind.Get(s.spec.Key()).Hist.Get()
	if !ok {
		return nil
	}

	s.hist = append(s.hist, h)
	if keep := s.cfg.CrossLookback + 1; len(s.hist) > keep {
		s.hist = s.hist[len(s.hist)-keep:]
	}

	if !hasCrossOver(s.hist, s.cfg.CrossLookback) {
		return nil
	}

	if h > s.cfg.BuyThreshold {
		return newSignal(c, market.Buy, "macd_cross_up", confidence(h, s.cfg.BuyThreshold, s.cfg.BuyCap))
	}
	if h < s.cfg.SellThreshold {
		return newSignal(c, market.Sell, "macd_cross_down", confidence(h, s.cfg.SellThreshold, s.cfg.SellCap))
	}
	return nil
}

func (s *MACDCross) OnTick(market.Tick) *Signal { return nil }

func confidence(v, threshold, limit float64) float64 {
	if limit == threshold {
		return 1
	}
	return min(1, (v-threshold)/(limit-threshold))
}

func hasCrossOver(hist []float64, lookback int) bool {
	l := len(hist)
	if l < 2 {
		return false
	}

	n := min(lookback, l-1)
	for i := 1; i <= n; i++ {
		next := hist[l-i]
		prev := hist[l-i-1]
		if prev < 0 && next > 0 || prev > 0 && next < 0 {
			return true
		}
	}

	return false
}
