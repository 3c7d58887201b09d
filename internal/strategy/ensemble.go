package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gamma-omg/algo-engine/internal/indicator"
	"github.com/gamma-omg/algo-engine/internal/market"
)

type Weighted struct {
	Weight   float64
	Strategy Strategy
}

// Ensemble combines child signals with a weighted vote. Children that stay
// silent vote hold. The winning side is emitted when its normalised
// weight reaches MinConfidence.
type Ensemble struct {
	Children      []Weighted
	MinConfidence float64
}

func (e *Ensemble) Name() string {
	names := make([]string, len(e.Children))
	for i, c := range e.Children {
		names[i] = c.Strategy.Name()
	}
	return "ensemble(" + strings.Join(names, ",") + ")"
}

// Indicators merges child indicators. Children asking for the same key
// share one indicator.
func (e *Ensemble) Indicators() []indicator.Spec {
	var res []indicator.Spec
	seen := map[string]bool{}
	for _, c := range e.Children {
		for _, spec := range c.Strategy.Indicators() {
			if seen[spec.Key()] {
				continue
			}
			seen[spec.Key()] = true
			res = append(res, spec)
		}
	}
	return res
}

func (e *Ensemble) OnStart(symbol string) error {
	var errs []error
	for _, c := range e.Children {
		if err := c.Strategy.OnStart(symbol); err != nil {
			errs = append(errs, fmt.Errorf("failed to start %s: %w", c.Strategy.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (e *Ensemble) OnStop() {
	for _, c := range e.Children {
		c.Strategy.OnStop()
	}
}

func (e *Ensemble) OnCandle(c market.Candle, ind indicator.Snapshot) *Signal {
	signals := make([]*Signal, len(e.Children))
	for i, child := range e.Children {
		signals[i] = child.Strategy.OnCandle(c, ind)
	}
	return e.vote(signals)
}

func (e *Ensemble) OnTick(t market.Tick) *Signal {
	signals := make([]*Signal, len(e.Children))
	for i, child := range e.Children {
		signals[i] = child.Strategy.OnTick(t)
	}
	return e.vote(signals)
}

func (e *Ensemble) vote(signals []*Signal) *Signal {
	var act, totalWeight float64
	var first *Signal
	var reasons []string
	for i, s := range signals {
		w := e.Children[i].Weight
		totalWeight += w
		if s == nil {
			continue
		}

		act += float64(s.Side.Sign()) * s.Confidence * w
		reasons = append(reasons, s.Reason)
		if first == nil {
			first = s
		}
	}

	if first == nil || act == 0 || totalWeight == 0 {
		return nil
	}

	res := *first
	res.Side = market.Buy
	if act < 0 {
		res.Side = market.Sell
		act = -act
	}
	res.Confidence = act / totalWeight
	res.Reason = strings.Join(reasons, "+")

	if res.Confidence < e.MinConfidence {
		return nil
	}
	return &res
}
