package emulator

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/shopspring/decimal"
)

type candleFilter func(c market.Candle) bool

type candleOrErr struct {
	candle market.Candle
	err    error
}

// candleReader reads candles from a CSV file with the columns
// timestamp,open,high,low,close,volume. Timestamps are unix seconds and
// fractional volumes are rounded.
type candleReader struct {
	path   string
	symbol string
	filter candleFilter
}

func newCandleReaderWithFilter(path, symbol string, filter candleFilter) *candleReader {
	return &candleReader{path: path, symbol: symbol, filter: filter}
}

// Read streams matching candles until the file ends, an error occurs or
// ctx is done. The channel is closed afterwards.
func (r *candleReader) Read(ctx context.Context) <-chan candleOrErr {
	out := make(chan candleOrErr, 64)

	go func() {
		defer close(out)

		err := r.scan(func(c market.Candle) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- candleOrErr{candle: c}:
				return true
			}
		})
		if err != nil {
			select {
			case <-ctx.Done():
			case out <- candleOrErr{err: err}:
			}
		}
	}()

	return out
}

// ReadAll returns every matching candle in file order.
func (r *candleReader) ReadAll() ([]market.Candle, error) {
	var res []market.Candle
	err := r.scan(func(c market.Candle) bool {
		res = append(res, c)
		return true
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (r *candleReader) scan(emit func(market.Candle) bool) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("unable to open candle data: %w", err)
	}
	defer f.Close()

	rdr := csv.NewReader(bufio.NewReader(f))
	rdr.FieldsPerRecord = -1

	if _, err := rdr.Read(); err != nil {
		return fmt.Errorf("failed to read csv header: %w", err)
	}

	for {
		data, err := rdr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read candle data: %w", err)
		}

		c, err := parseCandle(data)
		if err != nil {
			line, _ := rdr.FieldPos(0)
			return fmt.Errorf("%s:%d: %w", r.path, line, err)
		}
		c.Symbol = r.symbol

		if !r.filter(c) {
			continue
		}
		if !emit(c) {
			return nil
		}
	}
}

func parseCandle(data []string) (market.Candle, error) {
	if len(data) < 6 {
		return market.Candle{}, fmt.Errorf("expected 6 columns, got %d", len(data))
	}

	timestamp, err := strconv.ParseFloat(data[0], 64)
	if err != nil {
		return market.Candle{}, fmt.Errorf("failed to parse candle time: %w", err)
	}

	prices := make([]decimal.Decimal, 4)
	for i, name := range []string{"open", "high", "low", "close"} {
		prices[i], err = decimal.NewFromString(data[i+1])
		if err != nil {
			return market.Candle{}, fmt.Errorf("failed to read %s price: %w", name, err)
		}
	}

	volume, err := decimal.NewFromString(data[5])
	if err != nil {
		return market.Candle{}, fmt.Errorf("failed to read volume: %w", err)
	}

	c := market.Candle{
		Time:   time.Unix(int64(timestamp), 0),
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: volume.Round(0).IntPart(),
	}

	return c, nil
}
