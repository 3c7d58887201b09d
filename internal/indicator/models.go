package indicator

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gamma-omg/algo-engine/internal/market"
)

// Value is an indicator output that may not be defined yet.
type Value struct {
	V     float64
	Valid bool
}

func Defined(v float64) Value {
	return Value{V: v, Valid: true}
}

func Undefined() Value {
	return Value{}
}

func (v Value) Get() (float64, bool) {
	return v.V, v.Valid
}

func (v Value) String() string {
	if !v.Valid {
		return "undefined"
	}
	return strconv.FormatFloat(v.V, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.V)
}

type Direction int

const (
	DirNone Direction = 0
	DirUp   Direction = 1
	DirDown Direction = -1
)

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	default:
		return "none"
	}
}

// Point holds every output of one indicator at one index. Single-line
// indicators only fill Value.
type Point struct {
	Value  Value     `json:"value"`
	Signal Value     `json:"signal,omitzero"`
	Hist   Value     `json:"hist,omitzero"`
	Upper  Value     `json:"upper,omitzero"`
	Lower  Value     `json:"lower,omitzero"`
	Trend  Direction `json:"trend,omitempty"`
}

type Kind string

const (
	KindSMA        Kind = "sma"
	KindEMA        Kind = "ema"
	KindRSI        Kind = "rsi"
	KindMACD       Kind = "macd"
	KindBollinger  Kind = "bollinger"
	KindVWAP       Kind = "vwap"
	KindATR        Kind = "atr"
	KindSupertrend Kind = "supertrend"
)

type Spec struct {
	Name       string  `yaml:"name" json:"name,omitempty"`
	Kind       Kind    `yaml:"kind" json:"kind"`
	Period     int     `yaml:"period" json:"period,omitempty"`
	Fast       int     `yaml:"fast" json:"fast,omitempty"`
	Slow       int     `yaml:"slow" json:"slow,omitempty"`
	Signal     int     `yaml:"signal" json:"signal,omitempty"`
	StdDev     float64 `yaml:"std_dev" json:"std_dev,omitempty"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier,omitempty"`
	Session    bool    `yaml:"session" json:"session,omitempty"`
}

func (s Spec) Key() string {
	if s.Name != "" {
		return s.Name
	}

	switch s.Kind {
	case KindMACD:
		return fmt.Sprintf("macd_%d_%d_%d", s.Fast, s.Slow, s.Signal)
	case KindBollinger:
		return fmt.Sprintf("bollinger_%d_%g", s.Period, s.StdDev)
	case KindSupertrend:
		return fmt.Sprintf("supertrend_%d_%g", s.Period, s.Multiplier)
	case KindVWAP:
		if s.Session {
			return "vwap"
		}
	}
	return fmt.Sprintf("%s_%d", s.Kind, s.Period)
}

// Window is the minimum number of candles needed for the first defined output.
func (s Spec) Window() int {
	switch s.Kind {
	case KindRSI:
		return s.Period + 1
	case KindMACD:
		return s.Slow + s.Signal - 1
	case KindVWAP:
		if s.Session {
			return 1
		}
	}
	return s.Period
}

func (s Spec) Validate() error {
	switch s.Kind {
	case KindSMA, KindEMA, KindRSI, KindATR:
		if s.Period <= 0 {
			return fmt.Errorf("%w: %s period %d", market.ErrInvalidParameters, s.Kind, s.Period)
		}
	case KindMACD:
		if s.Fast <= 0 || s.Slow <= 0 || s.Signal <= 0 {
			return fmt.Errorf("%w: macd windows %d/%d/%d", market.ErrInvalidParameters, s.Fast, s.Slow, s.Signal)
		}
		if s.Fast >= s.Slow {
			return fmt.Errorf("%w: macd fast %d must be below slow %d", market.ErrInvalidParameters, s.Fast, s.Slow)
		}
	case KindBollinger:
		if s.Period <= 0 || s.StdDev <= 0 {
			return fmt.Errorf("%w: bollinger period %d std_dev %g", market.ErrInvalidParameters, s.Period, s.StdDev)
		}
	case KindVWAP:
		if !s.Session && s.Period <= 0 {
			return fmt.Errorf("%w: rolling vwap period %d", market.ErrInvalidParameters, s.Period)
		}
	case KindSupertrend:
		if s.Period <= 0 || s.Multiplier <= 0 {
			return fmt.Errorf("%w: supertrend period %d multiplier %g", market.ErrInvalidParameters, s.Period, s.Multiplier)
		}
	default:
		return fmt.Errorf("%w: unknown indicator kind %q", market.ErrInvalidParameters, s.Kind)
	}

	return nil
}
