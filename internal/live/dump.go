package live

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/gamma-omg/algo-engine/internal/market"
)

// csvCandleDump appends received candles to a CSV stream shared by all
// symbols. The format is readable by the emulator's candle reader.
type csvCandleDump struct {
	w           *csv.Writer
	writeHeader bool
	mu          sync.Mutex
}

func newCsvCandleDump(w io.Writer) *csvCandleDump {
	return &csvCandleDump{w: csv.NewWriter(w), writeHeader: true}
}

func (d *csvCandleDump) Dump(c market.Candle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.writeHeader {
		if err := d.w.Write([]string{"timestamp", "open", "high", "low", "close", "volume", "symbol"}); err != nil {
			return fmt.Errorf("failed to write candle dump csv header: %w", err)
		}
		d.writeHeader = false
	}

	err := d.w.Write([]string{
		strconv.FormatInt(c.Time.Unix(), 10),
		c.Open.String(),
		c.High.String(),
		c.Low.String(),
		c.Close.String(),
		strconv.FormatInt(c.Volume, 10),
		c.Symbol})

	if err != nil {
		return fmt.Errorf("failed to dump candle: %w", err)
	}

	d.w.Flush()
	return d.w.Error()
}
