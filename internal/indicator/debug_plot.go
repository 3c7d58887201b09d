package indicator

import (
	"errors"
	"fmt"
	"image/color"
	"os"

	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/pplcc/plotext"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// DebugPlot stacks several time aligned plots into one PNG.
type DebugPlot struct {
	plots   []*plot.Plot
	heights []float64
	w       int
	h       int
}

func NewDebugPlot(w, h int) *DebugPlot {
	return &DebugPlot{w: w, h: h}
}

func (d *DebugPlot) Add(p *plot.Plot, height float64) {
	d.plots = append(d.plots, p)
	d.heights = append(d.heights, height)
}

func (d *DebugPlot) Len() int {
	return len(d.plots)
}

// AddPrice adds a close price line of candles.
func (d *DebugPlot) AddPrice(candles []market.Candle, height float64) error {
	p := newTimePlot("Price")

	pts := make(plotter.XYs, len(candles))
	for i, c := range candles {
		pts[i] = plotter.XY{X: float64(c.Time.Unix()), Y: c.Close.InexactFloat64()}
	}

	l, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to create price graph: %w", err)
	}

	p.Add(l)
	d.Add(p, height)
	return nil
}

// AddIndicator adds the defined outputs of an indicator series computed over
// candles. Undefined indices are skipped.
func (d *DebugPlot) AddIndicator(name string, candles []market.Candle, points []Point, height float64) error {
	if len(points) != len(candles) {
		return fmt.Errorf("indicator %s has %d points for %d candles", name, len(points), len(candles))
	}

	p := newTimePlot(name)
	series := []struct {
		get   func(Point) Value
		color color.Color
	}{
		{func(pt Point) Value { return pt.Value }, color.RGBA{B: 200, A: 255}},
		{func(pt Point) Value { return pt.Signal }, color.RGBA{R: 200, A: 255}},
		{func(pt Point) Value { return pt.Upper }, color.RGBA{G: 150, A: 255}},
		{func(pt Point) Value { return pt.Lower }, color.RGBA{G: 150, A: 255}},
	}

	for _, s := range series {
		var pts plotter.XYs
		for i, pt := range points {
			if v, ok := s.get(pt).Get(); ok {
				pts = append(pts, plotter.XY{X: float64(candles[i].Time.Unix()), Y: v})
			}
		}
		if len(pts) == 0 {
			continue
		}

		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to create %s graph: %w", name, err)
		}
		l.Color = s.color
		p.Add(l)
	}

	d.Add(p, height)
	return nil
}

func newTimePlot(title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02\n15:04:05"}
	return p
}

func (d *DebugPlot) Save(path string) (err error) {
	if len(d.plots) == 0 {
		return errors.New("nothing to plot")
	}

	var axis []*plot.Axis
	for _, p := range d.plots {
		axis = append(axis, &p.X)
	}
	plotext.UniteAxisRanges(axis)

	tbl := plotext.Table{
		RowHeights: d.heights,
		ColWidths:  []float64{1},
	}

	var plots2d [][]*plot.Plot
	for _, p := range d.plots {
		plots2d = append(plots2d, []*plot.Plot{p})
	}

	h := 0.0
	for _, v := range d.heights {
		h += v * float64(d.h)
	}

	img := vgimg.New(vg.Points(float64(d.w)), vg.Points(h))
	dc := draw.New(img)

	canvases := tbl.Align(plots2d, dc)
	for i, p := range d.plots {
		p.Draw(canvases[i][0])
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create plot file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close plot file: %w", cerr))
		}
	}()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		return fmt.Errorf("failed to write plot to file: %w", err)
	}

	return nil
}
