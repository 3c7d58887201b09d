package strategy

import (
	"fmt"

	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/indicator"
	"github.com/gamma-omg/algo-engine/internal/market"
)

// RSIReversion buys when RSI enters the oversold zone and sells when it
// enters the overbought zone. Staying inside a zone does not repeat the
// signal.
type RSIReversion struct {
	cfg  config.RSIReversion
	spec indicator.Spec
	zone int
}

func NewRSIReversion(cfg config.RSIReversion) (*RSIReversion, error) {
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("%w: rsi period %d", market.ErrInvalidParameters, cfg.Period)
	}
	if cfg.Oversold <= 0 || cfg.Overbought >= 100 || cfg.Oversold >= cfg.Overbought {
		return nil, fmt.Errorf("%w: rsi zones %g/%g", market.ErrInvalidParameters, cfg.Oversold, cfg.Overbought)
	}

	return &RSIReversion{
		cfg:  cfg,
		spec: indicator.Spec{Kind: indicator.KindRSI, Period: cfg.Period},
	}, nil
}

func (s *RSIReversion) Name() string {
	return fmt.Sprintf("rsi_reversion_%d", s.cfg.Period)
}

func (s *RSIReversion) Indicators() []indicator.Spec {
	return []indicator.Spec{s.spec}
}

func (s *RSIReversion) OnStart(string) error {
	s.zone = 0
	return nil
}

func (s *RSIReversion) OnStop() {}

func (s *RSIReversion) OnCandle(c market.Candle, ind indicator.Snapshot) *Signal {
	rsi, ok := ind.Value(s.spec.Key())
	if !ok {
		return nil
	}

	zone := 0
	switch {
	case rsi <= s.cfg.Oversold:
		zone = -1
	case rsi >= s.cfg.Overbought:
		zone = 1
	}

	prev := s.zone
	s.zone = zone
	if zone == prev {
		return nil
	}

	switch zone {
	case -1:
		return newSignal(c, market.Buy, "rsi_oversold", 1)
	case 1:
		return newSignal(c, market.Sell, "rsi_overbought", 1)
	}
	return nil
}

func (s *RSIReversion) OnTick(market.Tick) *Signal { return nil }
