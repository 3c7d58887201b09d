package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Sign is +1 for a long side and -1 for a short side.
func (s Side) Sign() int64 {
	if s == Sell {
		return -1
	}
	return 1
}

type Candle struct {
	Symbol string
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

func (c Candle) Validate() error {
	for _, p := range []decimal.Decimal{c.Open, c.High, c.Low, c.Close} {
		if !p.IsPositive() {
			return fmt.Errorf("%w: non-positive price in candle %s@%s", ErrInvalidParameters, c.Symbol, c.Time)
		}
	}

	if c.High.LessThan(c.Low) {
		return fmt.Errorf("%w: high below low in candle %s@%s", ErrInvalidParameters, c.Symbol, c.Time)
	}

	if c.Volume < 0 {
		return fmt.Errorf("%w: negative volume in candle %s@%s", ErrInvalidParameters, c.Symbol, c.Time)
	}

	return nil
}

// Tick is a single trade print between candle closes.
type Tick struct {
	Symbol string
	Time   time.Time
	Price  decimal.Decimal
	Qty    int64
}

// Buffer is a fixed capacity ring of candles. Pushing into a full buffer
// evicts the oldest candle.
type Buffer struct {
	Symbol  string
	candles []Candle
	head    int
	size    int
}

func NewBuffer(symbol string, capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: buffer capacity %d", ErrInvalidParameters, capacity)
	}

	return &Buffer{
		Symbol:  symbol,
		candles: make([]Candle, capacity),
		head:    -1,
		size:    capacity,
	}, nil
}

func (b *Buffer) Push(c Candle) {
	b.head++
	b.candles[b.head%b.size] = c
}

func (b *Buffer) Len() int {
	return min(b.head+1, b.size)
}

func (b *Buffer) Cap() int {
	return b.size
}

func (b *Buffer) Latest() (Candle, bool) {
	if b.head < 0 {
		return Candle{}, false
	}

	return b.candles[b.head%b.size], true
}

// Last returns a copy of the newest count candles, oldest first.
func (b *Buffer) Last(count int) ([]Candle, error) {
	if count <= 0 || count > b.size {
		return nil, fmt.Errorf("%w: requested %d candles from buffer of %d", ErrInvalidParameters, count, b.size)
	}

	if count > b.Len() {
		return nil, fmt.Errorf("insufficient data: %d of %d candles", b.Len(), count)
	}

	res := make([]Candle, count)
	start := b.head - count + 1
	for i := range count {
		res[i] = b.candles[(start+i)%b.size]
	}

	return res, nil
}

func (b *Buffer) Candles() []Candle {
	if b.Len() == 0 {
		return nil
	}

	res, _ := b.Last(b.Len())
	return res
}
