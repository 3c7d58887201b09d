package backtest

import (
	"fmt"

	"github.com/gamma-omg/algo-engine/internal/indicator"
	"github.com/gamma-omg/algo-engine/internal/market"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
)

// PlotEquity saves the price series, one panel per indicator of the run and
// the equity curve of res into a single PNG.
func PlotEquity(path string, candles []market.Candle, res *Result) error {
	d, err := equityPlot(candles, res)
	if err != nil {
		return err
	}

	return d.Save(path)
}

func equityPlot(candles []market.Candle, res *Result) (*indicator.DebugPlot, error) {
	if len(res.Equity) == 0 {
		return nil, fmt.Errorf("no equity points for %s", res.Symbol)
	}

	d := indicator.NewDebugPlot(1200, 400)
	if len(candles) > 0 {
		if err := d.AddPrice(candles, 0.5); err != nil {
			return nil, err
		}

		for _, spec := range res.Indicators {
			points, err := indicator.Compute(spec, candles, false)
			if err != nil {
				return nil, fmt.Errorf("failed to compute %s for plot: %w", spec.Key(), err)
			}

			if err := d.AddIndicator(spec.Key(), candles, points, 0.25); err != nil {
				return nil, err
			}
		}
	}

	p := plot.New()
	p.Title.Text = "Equity " + res.Symbol
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02\n15:04:05"}

	pts := make(plotter.XYs, 0, len(res.Equity)+1)
	if len(candles) > 0 {
		pts = append(pts, plotter.XY{X: float64(candles[0].Time.Unix()), Y: res.Initial.InexactFloat64()})
	}
	for _, e := range res.Equity {
		pts = append(pts, plotter.XY{X: float64(e.Time.Unix()), Y: e.Equity.InexactFloat64()})
	}

	l, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to create equity graph: %w", err)
	}
	p.Add(l)
	d.Add(p, 0.4)

	return d, nil
}
