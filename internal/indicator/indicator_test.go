package indicator

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	res, err := SMA([]float64{1, 2, 3, 4, 5, 6}, 3)
	require.NoError(t, err)
	assertValues(t, []any{nil, nil, 2.0, 3.0, 4.0, 5.0}, res, 1e-9)
}

func TestEMA(t *testing.T) {
	tbl := []struct {
		data   []float64
		period int
		ema    []any
	}{
		{
			data:   []float64{2, 4, 6, 8, 12, 14},
			period: 2,
			ema:    []any{nil, 3.0, 5.0, 7.0, 10.333, 12.778},
		},
		{
			data:   []float64{6, 7, 11, 4, 5},
			period: 3,
			ema:    []any{nil, nil, 8.0, 6.0, 5.5},
		},
		{
			data:   []float64{6, 7},
			period: 3,
			ema:    []any{nil, nil},
		},
	}

	for i, c := range tbl {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			res, err := EMA(c.data, c.period)
			require.NoError(t, err)
			assertValues(t, c.ema, res, 1e-3)
		})
	}
}

func TestRSI(t *testing.T) {
	tbl := []struct {
		data   []float64
		period int
		rsi    []any
	}{
		{data: []float64{1, 2, 3, 2}, period: 2, rsi: []any{nil, nil, 100.0, 50.0}},
		{data: []float64{5, 5, 5, 5}, period: 2, rsi: []any{nil, nil, 50.0, 50.0}},
		{data: []float64{5, 4, 3}, period: 2, rsi: []any{nil, nil, 0.0}},
	}

	for i, c := range tbl {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			res, err := RSI(c.data, c.period)
			require.NoError(t, err)
			assertValues(t, c.rsi, res, 1e-9)
		})
	}
}

func TestFloatHelpers_InvalidPeriod(t *testing.T) {
	_, err := SMA([]float64{1}, 0)
	require.ErrorIs(t, err, market.ErrInvalidParameters)
	_, err = EMA([]float64{1}, -1)
	require.ErrorIs(t, err, market.ErrInvalidParameters)
	_, err = RSI([]float64{1}, 0)
	require.ErrorIs(t, err, market.ErrInvalidParameters)
}

func TestMACD(t *testing.T) {
	spec := Spec{Kind: KindMACD, Fast: 2, Slow: 3, Signal: 2}
	out, err := Compute(spec, candlesFromCloses(1, 2, 3, 4, 5), true)
	require.NoError(t, err)

	assertValues(t, []any{nil, nil, 0.5, 0.5, 0.5}, values(out, func(p Point) Value { return p.Value }), 1e-9)
	assertValues(t, []any{nil, nil, nil, 0.5, 0.5}, values(out, func(p Point) Value { return p.Signal }), 1e-9)
	assertValues(t, []any{nil, nil, nil, 0.0, 0.0}, values(out, func(p Point) Value { return p.Hist }), 1e-9)
	assert.Equal(t, 4, spec.Window())
}

func TestBollinger(t *testing.T) {
	out, err := Compute(Spec{Kind: KindBollinger, Period: 3, StdDev: 2}, candlesFromCloses(1, 2, 3), true)
	require.NoError(t, err)

	sd := math.Sqrt(2.0 / 3.0)
	assertValues(t, []any{nil, nil, 2.0}, values(out, func(p Point) Value { return p.Value }), 1e-9)
	assertValues(t, []any{nil, nil, 2 + 2*sd}, values(out, func(p Point) Value { return p.Upper }), 1e-9)
	assertValues(t, []any{nil, nil, 2 - 2*sd}, values(out, func(p Point) Value { return p.Lower }), 1e-9)
}

func TestSessionVWAP(t *testing.T) {
	candles := candlesFromCloses(10, 20, 30)
	candles[0].Volume = 100
	candles[1].Volume = 300
	// next IST day
	candles[2].Time = candles[1].Time.Add(24 * time.Hour)
	candles[2].Volume = 50

	out, err := Compute(Spec{Kind: KindVWAP, Session: true}, candles, true)
	require.NoError(t, err)

	// typical price equals close for the symmetric test candles
	assertValues(t, []any{10.0, 17.5, 30.0}, values(out, func(p Point) Value { return p.Value }), 1e-9)
}

func TestSessionVWAP_ZeroVolume(t *testing.T) {
	candles := candlesFromCloses(10, 20)
	candles[0].Volume = 0

	out, err := Compute(Spec{Kind: KindVWAP, Session: true}, candles, true)
	require.NoError(t, err)
	assertValues(t, []any{nil, 20.0}, values(out, func(p Point) Value { return p.Value }), 1e-9)
}

func TestRollingVWAP(t *testing.T) {
	candles := candlesFromCloses(10, 20, 30)
	candles[0].Volume = 100
	candles[1].Volume = 300
	candles[2].Volume = 100

	out, err := Compute(Spec{Kind: KindVWAP, Period: 2}, candles, true)
	require.NoError(t, err)
	assertValues(t, []any{nil, 17.5, 22.5}, values(out, func(p Point) Value { return p.Value }), 1e-9)
}

func TestATR(t *testing.T) {
	candles := []market.Candle{
		{High: decimal.NewFromInt(10), Low: decimal.NewFromInt(8), Close: decimal.NewFromInt(9)},
		{High: decimal.NewFromInt(11), Low: decimal.NewFromInt(9), Close: decimal.NewFromInt(10)},
		{High: decimal.NewFromInt(15), Low: decimal.NewFromInt(12), Close: decimal.NewFromInt(14)},
	}

	out, err := Compute(Spec{Kind: KindATR, Period: 2}, candles, true)
	require.NoError(t, err)

	// TR: 2, 2, max(3, 5, 2) = 5; ATR[2] = (2*1 + 5)/2
	assertValues(t, []any{nil, 2.0, 3.5}, values(out, func(p Point) Value { return p.Value }), 1e-9)
}

func TestSupertrend(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 80, 70, 60}
	out, err := Compute(Spec{Kind: KindSupertrend, Period: 3, Multiplier: 1}, candlesFromCloses(closes...), true)
	require.NoError(t, err)

	assert.False(t, out[0].Value.Valid)
	assert.False(t, out[1].Value.Valid)
	require.True(t, out[2].Value.Valid)

	for i := 2; i < 10; i++ {
		assert.Equal(t, DirUp, out[i].Trend, "index %d", i)
		assert.Equal(t, out[i].Lower, out[i].Value)
		if i > 2 {
			assert.GreaterOrEqual(t, out[i].Lower.V, out[i-1].Lower.V, "lower band must not fall in an uptrend")
		}
	}

	last := out[len(out)-1]
	assert.Equal(t, DirDown, last.Trend)
	assert.Equal(t, last.Upper, last.Value)
}

func TestCompute_Windows(t *testing.T) {
	candles := candlesFromCloses(10, 11, 12)

	_, err := Compute(Spec{Kind: KindSMA, Period: 0}, candles, false)
	require.ErrorIs(t, err, market.ErrInvalidParameters)

	_, err = Compute(Spec{Kind: KindEMA, Period: 5}, candles, true)
	require.ErrorIs(t, err, market.ErrInvalidParameters)

	out, err := Compute(Spec{Kind: KindEMA, Period: 5}, candles, false)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, p := range out {
		assert.False(t, p.Value.Valid)
	}

	_, err = Compute(Spec{Kind: KindMACD, Fast: 5, Slow: 3, Signal: 2}, candles, false)
	require.ErrorIs(t, err, market.ErrInvalidParameters)

	_, err = Compute(Spec{Kind: "nope", Period: 3}, candles, false)
	require.ErrorIs(t, err, market.ErrInvalidParameters)
}

var convergenceSpecs = []Spec{
	{Kind: KindSMA, Period: 10},
	{Kind: KindEMA, Period: 12},
	{Kind: KindRSI, Period: 14},
	{Kind: KindMACD, Fast: 12, Slow: 26, Signal: 9},
	{Kind: KindBollinger, Period: 20, StdDev: 2},
	{Kind: KindVWAP, Session: true},
	{Kind: KindVWAP, Period: 15},
	{Kind: KindATR, Period: 14},
	{Kind: KindSupertrend, Period: 10, Multiplier: 3},
}

func closes(cs []market.Candle) []float64 {
	res := make([]float64, len(cs))
	for i, c := range cs {
		res[i] = c.Close.InexactFloat64()
	}
	return res
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// The reference functions below recompute an indicator from the whole prefix
// at every index, without any carried state.

func refSMA(n int) func([]market.Candle) Point {
	return func(cs []market.Candle) Point {
		if len(cs) < n {
			return Point{}
		}
		return Point{Value: Defined(mean(closes(cs[len(cs)-n:])))}
	}
}

func refEMA(n int) func([]market.Candle) Point {
	return func(cs []market.Candle) Point {
		if len(cs) < n {
			return Point{}
		}
		xs := closes(cs)
		alpha := 2 / float64(n+1)
		v := mean(xs[:n])
		for _, x := range xs[n:] {
			v += alpha * (x - v)
		}
		return Point{Value: Defined(v)}
	}
}

func refRSI(n int) func([]market.Candle) Point {
	return func(cs []market.Candle) Point {
		if len(cs) < n+1 {
			return Point{}
		}
		xs := closes(cs)
		gains := make([]float64, len(xs)-1)
		losses := make([]float64, len(xs)-1)
		for i := 1; i < len(xs); i++ {
			d := xs[i] - xs[i-1]
			gains[i-1] = math.Max(d, 0)
			losses[i-1] = math.Max(-d, 0)
		}

		g, l := mean(gains[:n]), mean(losses[:n])
		for i := n; i < len(gains); i++ {
			g = (g*float64(n-1) + gains[i]) / float64(n)
			l = (l*float64(n-1) + losses[i]) / float64(n)
		}

		switch {
		case g == 0 && l == 0:
			return Point{Value: Defined(50)}
		case l == 0:
			return Point{Value: Defined(100)}
		}
		return Point{Value: Defined(100 - 100/(1+g/l))}
	}
}

func refBollinger(n int, k float64) func([]market.Candle) Point {
	return func(cs []market.Candle) Point {
		if len(cs) < n {
			return Point{}
		}
		xs := closes(cs[len(cs)-n:])
		m := mean(xs)
		var sq float64
		for _, x := range xs {
			sq += (x - m) * (x - m)
		}
		sd := math.Sqrt(sq / float64(n))
		return Point{Value: Defined(m), Upper: Defined(m + k*sd), Lower: Defined(m - k*sd)}
	}
}

func refRollingVWAP(n int) func([]market.Candle) Point {
	return func(cs []market.Candle) Point {
		if len(cs) < n {
			return Point{}
		}
		var pv, vol float64
		for _, c := range cs[len(cs)-n:] {
			tp := (c.High.InexactFloat64() + c.Low.InexactFloat64() + c.Close.InexactFloat64()) / 3
			pv += tp * float64(c.Volume)
			vol += float64(c.Volume)
		}
		return Point{Value: Defined(pv / vol)}
	}
}

func assertValue(t *testing.T, want, got Value, i int) {
	t.Helper()
	require.Equal(t, want.Valid, got.Valid, "index %d", i)
	if want.Valid {
		assert.InDelta(t, want.V, got.V, 1e-6, "index %d", i)
	}
}

func TestStepMatchesRecompute(t *testing.T) {
	candles := wave(300)

	tbl := []struct {
		spec Spec
		ref  func([]market.Candle) Point
	}{
		{spec: Spec{Kind: KindSMA, Period: 10}, ref: refSMA(10)},
		{spec: Spec{Kind: KindEMA, Period: 12}, ref: refEMA(12)},
		{spec: Spec{Kind: KindRSI, Period: 14}, ref: refRSI(14)},
		{spec: Spec{Kind: KindBollinger, Period: 20, StdDev: 2}, ref: refBollinger(20, 2)},
		{spec: Spec{Kind: KindVWAP, Period: 15}, ref: refRollingVWAP(15)},
	}

	for i, c := range tbl {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			st, err := New(c.spec)
			require.NoError(t, err)

			for j := range candles {
				got := st.Step(candles[j])
				want := c.ref(candles[:j+1])

				assertValue(t, want.Value, got.Value, j)
				assertValue(t, want.Upper, got.Upper, j)
				assertValue(t, want.Lower, got.Lower, j)
			}

			assert.Equal(t, st.Last(), mustCompute(t, c.spec, candles)[len(candles)-1])
		})
	}
}

func mustCompute(t *testing.T, spec Spec, candles []market.Candle) []Point {
	t.Helper()
	out, err := Compute(spec, candles, true)
	require.NoError(t, err)
	return out
}

func TestBatchDependsOnlyOnPrefix(t *testing.T) {
	candles := wave(120)

	for i, spec := range convergenceSpecs {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			full, err := Compute(spec, candles, false)
			require.NoError(t, err)

			for _, n := range []int{1, 17, 60, 119} {
				prefix, err := Compute(spec, candles[:n], false)
				require.NoError(t, err)
				assert.Equal(t, full[n-1], prefix[n-1])
			}
		})
	}
}

func TestSet(t *testing.T) {
	set, err := NewSet([]Spec{
		{Name: "fast", Kind: KindEMA, Period: 2},
		{Kind: KindSMA, Period: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, set.Window())

	var snap Snapshot
	for _, c := range candlesFromCloses(2, 4, 6) {
		snap = set.Step(c)
	}

	v, ok := snap.Value("fast")
	require.True(t, ok)
	assert.InDelta(t, 5.0, v, 1e-9)

	v, ok = snap.Value("sma_3")
	require.True(t, ok)
	assert.InDelta(t, 4.0, v, 1e-9)

	_, ok = snap.Value("missing")
	assert.False(t, ok)

	assert.Equal(t, snap, set.Snapshot())
}

func TestSpecKey(t *testing.T) {
	tbl := []struct {
		spec Spec
		key  string
	}{
		{spec: Spec{Kind: KindEMA, Period: 9}, key: "ema_9"},
		{spec: Spec{Name: "fast", Kind: KindEMA, Period: 9}, key: "fast"},
		{spec: Spec{Kind: KindMACD, Fast: 12, Slow: 26, Signal: 9}, key: "macd_12_26_9"},
		{spec: Spec{Kind: KindBollinger, Period: 20, StdDev: 2}, key: "bollinger_20_2"},
		{spec: Spec{Kind: KindBollinger, Period: 20, StdDev: 2.5}, key: "bollinger_20_2.5"},
		{spec: Spec{Kind: KindSupertrend, Period: 10, Multiplier: 3}, key: "supertrend_10_3"},
		{spec: Spec{Kind: KindVWAP, Session: true}, key: "vwap"},
		{spec: Spec{Kind: KindVWAP, Period: 15}, key: "vwap_15"},
	}

	for i, c := range tbl {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			assert.Equal(t, c.key, c.spec.Key())
		})
	}
}

func TestSet_DistinctParameters(t *testing.T) {
	set, err := NewSet([]Spec{
		{Kind: KindBollinger, Period: 5, StdDev: 1},
		{Kind: KindBollinger, Period: 5, StdDev: 3},
		{Kind: KindSupertrend, Period: 3, Multiplier: 1},
		{Kind: KindSupertrend, Period: 3, Multiplier: 2},
	})
	require.NoError(t, err)

	var snap Snapshot
	for _, c := range wave(20) {
		snap = set.Step(c)
	}
	require.Len(t, snap, 4)

	narrow := snap.Get("bollinger_5_1")
	wide := snap.Get("bollinger_5_3")
	assert.InDelta(t, narrow.Value.V, wide.Value.V, 1e-12)
	assert.Greater(t, wide.Upper.V, narrow.Upper.V)
}

func TestSet_Duplicate(t *testing.T) {
	_, err := NewSet([]Spec{
		{Kind: KindSMA, Period: 3},
		{Kind: KindSMA, Period: 3},
	})
	require.ErrorIs(t, err, market.ErrInvalidParameters)
}

func TestValueJSON(t *testing.T) {
	b, err := json.Marshal(Point{Value: Defined(1.5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":1.5}`, string(b))

	b, err = json.Marshal(Point{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":null}`, string(b))
}
