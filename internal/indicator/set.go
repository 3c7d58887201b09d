package indicator

import (
	"fmt"

	"github.com/gamma-omg/algo-engine/internal/market"
)

// Compute evaluates spec over candles from a cold state. It is the fold of
// Stepper.Step over the series, so out[i] depends only on candles[0..i].
// In strict mode a series shorter than the indicator window is rejected,
// otherwise every index of such a series is undefined.
func Compute(spec Spec, candles []market.Candle, strict bool) ([]Point, error) {
	s, err := New(spec)
	if err != nil {
		return nil, err
	}

	if strict && spec.Window() > len(candles) {
		return nil, fmt.Errorf("%w: %s needs %d candles, got %d", market.ErrInvalidParameters, spec.Key(), spec.Window(), len(candles))
	}

	out := make([]Point, len(candles))
	for i, c := range candles {
		out[i] = s.Step(c)
	}

	return out, nil
}

// Snapshot maps indicator names to their newest outputs.
type Snapshot map[string]Point

func (s Snapshot) Get(name string) Point {
	return s[name]
}

func (s Snapshot) Value(name string) (float64, bool) {
	return s[name].Value.Get()
}

// Set steps a fixed collection of named indicators together.
type Set struct {
	specs    []Spec
	steppers []Stepper
}

func NewSet(specs []Spec) (*Set, error) {
	set := &Set{
		specs:    make([]Spec, 0, len(specs)),
		steppers: make([]Stepper, 0, len(specs)),
	}

	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		key := spec.Key()
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate indicator %q", market.ErrInvalidParameters, key)
		}
		seen[key] = true

		st, err := New(spec)
		if err != nil {
			return nil, fmt.Errorf("failed to create indicator %q: %w", key, err)
		}

		set.specs = append(set.specs, spec)
		set.steppers = append(set.steppers, st)
	}

	return set, nil
}

func (s *Set) Specs() []Spec {
	return append([]Spec(nil), s.specs...)
}

// Window is the largest window among the set's indicators.
func (s *Set) Window() int {
	w := 0
	for _, spec := range s.specs {
		w = max(w, spec.Window())
	}
	return w
}

// Step advances every indicator by c and returns their new outputs.
func (s *Set) Step(c market.Candle) Snapshot {
	snap := make(Snapshot, len(s.steppers))
	for i, st := range s.steppers {
		snap[s.specs[i].Key()] = st.Step(c)
	}
	return snap
}

func (s *Set) Snapshot() Snapshot {
	snap := make(Snapshot, len(s.steppers))
	for i, st := range s.steppers {
		snap[s.specs[i].Key()] = st.Last()
	}
	return snap
}
