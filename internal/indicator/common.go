package indicator

import (
	"fmt"
	"math"

	"github.com/gamma-omg/algo-engine/internal/market"
)

// ring is a fixed size float window.
type ring struct {
	data  []float64
	next  int
	count int
}

func newRing(size int) *ring {
	return &ring{data: make([]float64, size)}
}

// push stores x and returns the value it overwrote, if any.
func (r *ring) push(x float64) (evicted float64, ok bool) {
	if r.count == len(r.data) {
		evicted, ok = r.data[r.next], true
	} else {
		r.count++
	}

	r.data[r.next] = x
	r.next = (r.next + 1) % len(r.data)
	return
}

func (r *ring) full() bool {
	return r.count == len(r.data)
}

func (r *ring) values() []float64 {
	return r.data[:r.count]
}

type smaState struct {
	win *ring
	sum float64
}

func newSMAState(period int) *smaState {
	return &smaState{win: newRing(period)}
}

func (s *smaState) step(x float64) Value {
	if old, ok := s.win.push(x); ok {
		s.sum -= old
	}
	s.sum += x

	if !s.win.full() {
		return Undefined()
	}
	return Defined(s.sum / float64(s.win.count))
}

// emaState is a recursive average seeded with the simple average of the
// first period inputs. The same state drives EMA (alpha = 2/(n+1)) and
// Wilder smoothing (alpha = 1/n).
type emaState struct {
	period int
	alpha  float64
	count  int
	seed   float64
	value  float64
}

func newEMAState(period int) *emaState {
	return &emaState{period: period, alpha: 2.0 / (float64(period) + 1)}
}

func newWilderState(period int) *emaState {
	return &emaState{period: period, alpha: 1.0 / float64(period)}
}

func (e *emaState) step(x float64) Value {
	if e.count >= e.period {
		e.value = x*e.alpha + e.value*(1-e.alpha)
		return Defined(e.value)
	}

	e.count++
	e.seed += x
	if e.count < e.period {
		return Undefined()
	}

	e.value = e.seed / float64(e.period)
	return Defined(e.value)
}

type rsiState struct {
	prev    float64
	hasPrev bool
	gain    *emaState
	loss    *emaState
}

func newRSIState(period int) *rsiState {
	return &rsiState{
		gain: newWilderState(period),
		loss: newWilderState(period),
	}
}

func (r *rsiState) step(x float64) Value {
	if !r.hasPrev {
		r.prev, r.hasPrev = x, true
		return Undefined()
	}

	diff := x - r.prev
	r.prev = x

	g := r.gain.step(math.Max(diff, 0))
	l := r.loss.step(math.Max(-diff, 0))
	if !g.Valid {
		return Undefined()
	}

	switch {
	case l.V == 0 && g.V == 0:
		return Defined(50)
	case l.V == 0:
		return Defined(100)
	}

	return Defined(100 - 100/(1+g.V/l.V))
}

type atrState struct {
	prevClose float64
	hasPrev   bool
	avg       *emaState
}

func newATRState(period int) *atrState {
	return &atrState{avg: newWilderState(period)}
}

func (a *atrState) step(high, low, close float64) Value {
	tr := high - low
	if a.hasPrev {
		tr = math.Max(tr, math.Max(math.Abs(high-a.prevClose), math.Abs(low-a.prevClose)))
	}
	a.prevClose, a.hasPrev = close, true

	return a.avg.step(tr)
}

// SMA is the simple moving average of data.
func SMA(data []float64, period int) ([]Value, error) {
	if err := checkPeriod(period); err != nil {
		return nil, err
	}
	return fold(data, newSMAState(period).step), nil
}

// EMA is the exponential moving average of data seeded with SMA(period).
func EMA(data []float64, period int) ([]Value, error) {
	if err := checkPeriod(period); err != nil {
		return nil, err
	}
	return fold(data, newEMAState(period).step), nil
}

// RSI is the Wilder relative strength index of data.
func RSI(data []float64, period int) ([]Value, error) {
	if err := checkPeriod(period); err != nil {
		return nil, err
	}
	return fold(data, newRSIState(period).step), nil
}

func checkPeriod(period int) error {
	if period <= 0 {
		return fmt.Errorf("%w: period %d", market.ErrInvalidParameters, period)
	}
	return nil
}

func fold(data []float64, step func(float64) Value) []Value {
	res := make([]Value, len(data))
	for i, x := range data {
		res[i] = step(x)
	}
	return res
}
