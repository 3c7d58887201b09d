package market

import (
	"time"

	"github.com/shopspring/decimal"
)

type IdentityAggregator struct {
}

func (a *IdentityAggregator) Aggregate(candles <-chan Candle) <-chan Candle {
	return candles
}

// IntervalAggregator resamples a stream of CandleDuration candles into
// candles of Interval length. Buckets are aligned to Interval boundaries.
type IntervalAggregator struct {
	CandleDuration time.Duration
	Interval       time.Duration
}

func (a *IntervalAggregator) Aggregate(candles <-chan Candle) <-chan Candle {
	res := make(chan Candle)
	go func() {
		defer close(res)

		var cur *Candle
		var end time.Time
		for c := range candles {
			if cur != nil && !c.Time.Before(end) {
				res <- *cur
				cur = nil
			}

			if cur == nil {
				end = c.Time.Truncate(a.Interval).Add(a.Interval)
				cur = &Candle{
					Symbol: c.Symbol,
					Time:   c.Time,
					Open:   c.Open,
					High:   c.High,
					Low:    c.Low,
				}
			}

			cur.Close = c.Close
			cur.High = decimal.Max(cur.High, c.High)
			cur.Low = decimal.Min(cur.Low, c.Low)
			cur.Volume += c.Volume

			if !c.Time.Add(a.CandleDuration).Before(end) {
				res <- *cur
				cur = nil
			}
		}

		if cur != nil {
			res <- *cur
		}
	}()

	return res
}
