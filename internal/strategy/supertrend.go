package strategy

import (
	"fmt"

	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/indicator"
	"github.com/gamma-omg/algo-engine/internal/market"
)

// SupertrendFollow signals on every supertrend direction flip. Between
// candles it also watches ticks and signals once when price breaks the
// active band before the candle closes.
type SupertrendFollow struct {
	spec   indicator.Spec
	symbol string
	trend  indicator.Direction
	band   float64
	broken bool
}

func NewSupertrendFollow(cfg config.Supertrend) (*SupertrendFollow, error) {
	spec := indicator.Spec{
		Name:       fmt.Sprintf("supertrend_%d_%g", cfg.Period, cfg.Multiplier),
		Kind:       indicator.KindSupertrend,
		Period:     cfg.Period,
		Multiplier: cfg.Multiplier,
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	return &SupertrendFollow{spec: spec}, nil
}

func (s *SupertrendFollow) Name() string {
	return s.spec.Name
}

func (s *SupertrendFollow) Indicators() []indicator.Spec {
	return []indicator.Spec{s.spec}
}

func (s *SupertrendFollow) OnStart(symbol string) error {
	s.symbol = symbol
	s.trend = indicator.DirNone
	s.broken = false
	return nil
}

func (s *SupertrendFollow) OnStop() {
	s.trend = indicator.DirNone
}

func (s *SupertrendFollow) OnCandle(c market.Candle, ind indicator.Snapshot) *Signal {
	p := ind.Get(s.spec.Key())
	if !p.Value.Valid {
		return nil
	}

	prev, wasBroken := s.trend, s.broken
	s.trend, s.band, s.broken = p.Trend, p.Value.V, false

	if prev == indicator.DirNone || prev == p.Trend || wasBroken {
		return nil
	}

	if p.Trend == indicator.DirUp {
		return newSignal(c, market.Buy, "supertrend_up", 1)
	}
	return newSignal(c, market.Sell, "supertrend_down", 1)
}

func (s *SupertrendFollow) OnTick(t market.Tick) *Signal {
	if s.broken || s.trend == indicator.DirNone || (s.symbol != "" && t.Symbol != s.symbol) {
		return nil
	}

	price := t.Price.InexactFloat64()
	var side market.Side
	switch {
	case s.trend == indicator.DirUp && price < s.band:
		side = market.Sell
	case s.trend == indicator.DirDown && price > s.band:
		side = market.Buy
	default:
		return nil
	}

	s.broken = true
	return &Signal{
		Symbol:         t.Symbol,
		Side:           side,
		ReferencePrice: t.Price,
		Reason:         "supertrend_band_break",
		Confidence:     1,
		Time:           t.Time,
	}
}
