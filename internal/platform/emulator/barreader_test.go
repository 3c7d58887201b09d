package emulator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func all(market.Candle) bool { return true }

func readCandles(t *testing.T, ctx context.Context, r *candleReader) []market.Candle {
	t.Helper()

	var candles []market.Candle
	for c := range r.Read(ctx) {
		require.NoError(t, c.err)
		candles = append(candles, c.candle)
	}

	return candles
}

func TestRead(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dataFile := writeCsv(t, "data", `timestamp,open,high,low,close,volume
1460413380.0,421.07,521.07,321.06,421.06,1.592`)
	r := newCandleReaderWithFilter(dataFile, "BTC", all)

	candles := readCandles(t, ctx, r)
	require.Len(t, candles, 1)
	assert.Equal(t, "BTC", candles[0].Symbol)
	assert.Equal(t, time.Unix(1460413380, 0), candles[0].Time)
	assert.True(t, decimal.RequireFromString("421.07").Equal(candles[0].Open))
	assert.True(t, decimal.RequireFromString("521.07").Equal(candles[0].High))
	assert.True(t, decimal.RequireFromString("321.06").Equal(candles[0].Low))
	assert.True(t, decimal.RequireFromString("421.06").Equal(candles[0].Close))
	assert.Equal(t, int64(2), candles[0].Volume)
}

func TestReadFilter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dataFile := writeCsv(t, "data", `timestamp,open,high,low,close,volume
1390134600.0,800.0,800.0,800.0,800.0,0.0
1437452040.0,279.22,279.22,279.22,279.22,0.0
1460413380.0,421.07,521.07,321.06,421.06,1.192
1553889480.0,4080.0,4080.1,4080.0,4080.1,2.035854
1758127500.0,115510,115510,115482,115493,1.05828858
1758152940.0,116570,116577,116569,116574,1.60268598
`)
	r := newCandleReaderWithFilter(dataFile, "BTC", func(c market.Candle) bool {
		return c.Time.After(time.Unix(1437452040, 0)) && c.Time.Before(time.Unix(1758127500, 0))
	})

	candles := readCandles(t, ctx, r)
	require.Len(t, candles, 2)
	assert.Equal(t, time.Unix(1460413380, 0), candles[0].Time)
	assert.Equal(t, time.Unix(1553889480, 0), candles[1].Time)
}

func TestRead_Malformed(t *testing.T) {
	tbl := []string{
		"timestamp,open,high,low,close,volume\nabc,1,1,1,1,1\n",
		"timestamp,open,high,low,close,volume\n1460413380,1,x,1,1,1\n",
		"timestamp,open,high,low,close,volume\n1460413380,1,1,1,1\n",
		"timestamp,open,high,low,close,volume\n1460413380,1,1,1,1,?\n",
	}

	for i, src := range tbl {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			r := newCandleReaderWithFilter(writeCsv(t, "data", src), "BTC", all)

			_, err := r.ReadAll()
			require.Error(t, err)

			var got error
			for c := range r.Read(context.Background()) {
				got = c.err
			}
			require.Error(t, got)
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	r := newCandleReaderWithFilter("/nonexistent/candles.csv", "BTC", all)
	_, err := r.ReadAll()
	require.Error(t, err)
}

func TestRead_Cancel(t *testing.T) {
	dataFile := writeCsv(t, "data", `timestamp,open,high,low,close,volume
1460413380,1,1,1,1,1
1460413440,1,1,1,1,1
1460413500,1,1,1,1,1
`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newCandleReaderWithFilter(dataFile, "BTC", all)
	n := 0
	for c := range r.Read(ctx) {
		require.NoError(t, c.err)
		n++
	}
	assert.LessOrEqual(t, n, 3)
}
