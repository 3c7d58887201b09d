package indicator

import (
	"math"
	"time"

	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/gamma-omg/algo-engine/internal/markethours"
)

// Stepper advances one indicator by exactly one candle, carrying whatever
// recursive state the indicator needs between calls.
type Stepper interface {
	Step(c market.Candle) Point
	Last() Point
}

// New returns a cold stepper for spec.
func New(spec Spec) (Stepper, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	switch spec.Kind {
	case KindSMA:
		return &closeStepper{step: newSMAState(spec.Period).step}, nil
	case KindEMA:
		return &closeStepper{step: newEMAState(spec.Period).step}, nil
	case KindRSI:
		return &closeStepper{step: newRSIState(spec.Period).step}, nil
	case KindMACD:
		return &macdStepper{
			fast:   newEMAState(spec.Fast),
			slow:   newEMAState(spec.Slow),
			signal: newEMAState(spec.Signal),
		}, nil
	case KindBollinger:
		return &bollingerStepper{win: newRing(spec.Period), k: spec.StdDev}, nil
	case KindVWAP:
		if spec.Session {
			return &sessionVWAPStepper{}, nil
		}
		return &rollingVWAPStepper{pv: newRing(spec.Period), vol: newRing(spec.Period)}, nil
	case KindATR:
		return &atrStepper{atr: newATRState(spec.Period)}, nil
	default:
		return &supertrendStepper{atr: newATRState(spec.Period), mult: spec.Multiplier}, nil
	}
}

type closeStepper struct {
	step func(float64) Value
	last Point
}

func (s *closeStepper) Step(c market.Candle) Point {
	s.last = Point{Value: s.step(c.Close.InexactFloat64())}
	return s.last
}

func (s *closeStepper) Last() Point { return s.last }

type macdStepper struct {
	fast   *emaState
	slow   *emaState
	signal *emaState
	last   Point
}

func (s *macdStepper) Step(c market.Candle) Point {
	x := c.Close.InexactFloat64()
	fast := s.fast.step(x)
	slow := s.slow.step(x)
	if !fast.Valid || !slow.Valid {
		s.last = Point{}
		return s.last
	}

	line := fast.V - slow.V
	signal := s.signal.step(line)
	s.last = Point{Value: Defined(line), Signal: signal}
	if signal.Valid {
		s.last.Hist = Defined(line - signal.V)
	}
	return s.last
}

func (s *macdStepper) Last() Point { return s.last }

// bollingerStepper uses the population standard deviation of the window.
type bollingerStepper struct {
	win  *ring
	k    float64
	last Point
}

func (s *bollingerStepper) Step(c market.Candle) Point {
	s.win.push(c.Close.InexactFloat64())
	if !s.win.full() {
		s.last = Point{}
		return s.last
	}

	vals := s.win.values()
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))

	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(sq / float64(len(vals)))

	s.last = Point{
		Value: Defined(mean),
		Upper: Defined(mean + s.k*sd),
		Lower: Defined(mean - s.k*sd),
	}
	return s.last
}

func (s *bollingerStepper) Last() Point { return s.last }

func typicalPrice(c market.Candle) float64 {
	return (c.High.InexactFloat64() + c.Low.InexactFloat64() + c.Close.InexactFloat64()) / 3
}

// sessionVWAPStepper resets its accumulators at every new IST session.
type sessionVWAPStepper struct {
	session time.Time
	pv      float64
	vol     float64
	last    Point
}

func (s *sessionVWAPStepper) Step(c market.Candle) Point {
	day := markethours.SessionDate(c.Time)
	if !day.Equal(s.session) {
		s.session, s.pv, s.vol = day, 0, 0
	}

	v := float64(c.Volume)
	s.pv += typicalPrice(c) * v
	s.vol += v

	s.last = Point{}
	if s.vol > 0 {
		s.last.Value = Defined(s.pv / s.vol)
	}
	return s.last
}

func (s *sessionVWAPStepper) Last() Point { return s.last }

type rollingVWAPStepper struct {
	pv     *ring
	vol    *ring
	sumPV  float64
	sumVol float64
	last   Point
}

func (s *rollingVWAPStepper) Step(c market.Candle) Point {
	v := float64(c.Volume)
	pv := typicalPrice(c) * v

	if old, ok := s.pv.push(pv); ok {
		s.sumPV -= old
	}
	if old, ok := s.vol.push(v); ok {
		s.sumVol -= old
	}
	s.sumPV += pv
	s.sumVol += v

	s.last = Point{}
	if s.vol.full() && s.sumVol > 0 {
		s.last.Value = Defined(s.sumPV / s.sumVol)
	}
	return s.last
}

func (s *rollingVWAPStepper) Last() Point { return s.last }

type atrStepper struct {
	atr  *atrState
	last Point
}

func (s *atrStepper) Step(c market.Candle) Point {
	s.last = Point{Value: s.atr.step(c.High.InexactFloat64(), c.Low.InexactFloat64(), c.Close.InexactFloat64())}
	return s.last
}

func (s *atrStepper) Last() Point { return s.last }

// supertrendStepper tracks hl2 -/+ mult*ATR bands. Final bands only move
// toward price unless the previous close broke through them, and the
// trend flips when the close crosses the opposite final band.
type supertrendStepper struct {
	atr       *atrState
	mult      float64
	started   bool
	upper     float64
	lower     float64
	prevClose float64
	dir       Direction
	last      Point
}

func (s *supertrendStepper) Step(c market.Candle) Point {
	high, low, cl := c.High.InexactFloat64(), c.Low.InexactFloat64(), c.Close.InexactFloat64()
	atr := s.atr.step(high, low, cl)
	if !atr.Valid {
		s.prevClose = cl
		s.last = Point{}
		return s.last
	}

	hl2 := (high + low) / 2
	bu := hl2 + s.mult*atr.V
	bl := hl2 - s.mult*atr.V

	if !s.started {
		s.started = true
		s.upper, s.lower = bu, bl
		s.dir = DirUp
		if cl < bl {
			s.dir = DirDown
		}
	} else {
		if bu < s.upper || s.prevClose > s.upper {
			s.upper = bu
		}
		if bl > s.lower || s.prevClose < s.lower {
			s.lower = bl
		}

		switch {
		case s.dir == DirUp && cl < s.lower:
			s.dir = DirDown
		case s.dir == DirDown && cl > s.upper:
			s.dir = DirUp
		}
	}
	s.prevClose = cl

	line := s.lower
	if s.dir == DirDown {
		line = s.upper
	}

	s.last = Point{
		Value: Defined(line),
		Upper: Defined(s.upper),
		Lower: Defined(s.lower),
		Trend: s.dir,
	}
	return s.last
}

func (s *supertrendStepper) Last() Point { return s.last }
