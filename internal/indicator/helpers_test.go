package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/gamma-omg/algo-engine/internal/markethours"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var testStart = time.Date(2026, time.January, 5, 9, 15, 0, 0, markethours.IST)

func candlesFromCloses(closes ...float64) []market.Candle {
	res := make([]market.Candle, len(closes))
	for i, c := range closes {
		res[i] = market.Candle{
			Symbol: "SYM",
			Time:   testStart.Add(time.Duration(i) * time.Minute),
			Open:   decimal.NewFromFloat(c),
			High:   decimal.NewFromFloat(c + 1),
			Low:    decimal.NewFromFloat(c - 1),
			Close:  decimal.NewFromFloat(c),
			Volume: 100,
		}
	}
	return res
}

// wave produces a deterministic noisy trending series.
func wave(n int) []market.Candle {
	closes := make([]float64, n)
	for i := range n {
		x := float64(i)
		closes[i] = 100 + 10*math.Sin(x/7) + 3*math.Cos(x/2.3) + x/20
	}
	return candlesFromCloses(closes...)
}

func assertValues(t *testing.T, expected []any, actual []Value, eps float64) {
	t.Helper()

	assert.Len(t, actual, len(expected))
	for i, e := range expected {
		if e == nil {
			assert.False(t, actual[i].Valid, "index %d must be undefined, got %s", i, actual[i])
			continue
		}
		assert.True(t, actual[i].Valid, "index %d must be defined", i)
		assert.InDelta(t, e.(float64), actual[i].V, eps, "index %d", i)
	}
}

func values(points []Point, get func(Point) Value) []Value {
	res := make([]Value, len(points))
	for i, p := range points {
		res[i] = get(p)
	}
	return res
}
