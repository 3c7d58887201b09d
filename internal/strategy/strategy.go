package strategy

import (
	"time"

	"github.com/gamma-omg/algo-engine/internal/indicator"
	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/shopspring/decimal"
)

// Signal is an order intent. A zero ReferencePrice means the close of the
// candle that produced it.
type Signal struct {
	ID             string          `json:"id,omitempty"`
	Symbol         string          `json:"symbol"`
	Side           market.Side     `json:"side"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	Reason         string          `json:"reason"`
	Confidence     float64         `json:"confidence,omitempty"`
	Time           time.Time       `json:"time,omitzero"`
}

// Strategy is a per-symbol decision object. Implementations may keep state
// between calls, so every symbol and every backtest run needs its own
// instance.
type Strategy interface {
	Name() string
	// Indicators lists what OnCandle expects to find in its snapshot.
	Indicators() []indicator.Spec
	OnStart(symbol string) error
	OnStop()
	OnCandle(c market.Candle, ind indicator.Snapshot) *Signal
	OnTick(t market.Tick) *Signal
}

// Factory builds fresh strategy instances.
type Factory func() (Strategy, error)

func newSignal(c market.Candle, side market.Side, reason string, confidence float64) *Signal {
	return &Signal{
		Symbol:         c.Symbol,
		Side:           side,
		ReferencePrice: c.Close,
		Reason:         reason,
		Confidence:     confidence,
		Time:           c.Time,
	}
}

// crossState remembers the sign of a difference between calls and reports
// when it changes.
type crossState struct {
	prev  float64
	valid bool
}

// update returns +1 on an upward cross through zero, -1 on a downward one.
func (s *crossState) update(diff float64) int {
	defer func() { s.prev, s.valid = diff, true }()

	if !s.valid {
		return 0
	}
	if s.prev <= 0 && diff > 0 {
		return 1
	}
	if s.prev >= 0 && diff < 0 {
		return -1
	}
	return 0
}

func (s *crossState) reset() {
	s.prev, s.valid = 0, false
}
