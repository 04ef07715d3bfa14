// Package report renders recorded sessions to static images.
package report

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/attention.report/internal/tracking"
)

// ErrNoTrails is returned when there is nothing to draw.
var ErrNoTrails = errors.New("no track trails to plot")

// TrailOptions controls the output image.
type TrailOptions struct {
	Title  string
	Width  vg.Length
	Height vg.Length
}

func (o TrailOptions) withDefaults() TrailOptions {
	if o.Title == "" {
		o.Title = "Track trails"
	}
	if o.Width <= 0 {
		o.Width = 10 * vg.Inch
	}
	if o.Height <= 0 {
		o.Height = 7 * vg.Inch
	}
	return o
}

// PlotTrails draws every track's smoothed trail, one colour per track in
// ascending ID order. Image Y grows downward, so the Y axis is drawn
// flipped. The file format follows the extension of path.
func PlotTrails(trails map[int64][]tracking.Point, path string, o TrailOptions) error {
	p, err := NewTrailPlot(trails, o)
	if err != nil {
		return err
	}
	o = o.withDefaults()
	if err := p.Save(o.Width, o.Height, path); err != nil {
		return fmt.Errorf("save trail plot: %w", err)
	}
	return nil
}

// NewTrailPlot builds the plot without saving it.
func NewTrailPlot(trails map[int64][]tracking.Point, o TrailOptions) (*plot.Plot, error) {
	o = o.withDefaults()

	ids := make([]int64, 0, len(trails))
	for id, pts := range trails {
		if len(pts) > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, ErrNoTrails
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	p := plot.New()
	p.Title.Text = o.Title
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"
	p.Y.Tick.Marker = flippedTicks{}
	p.Legend.Top = true
	p.Legend.Left = false

	for i, id := range ids {
		pts := trails[id]
		xys := make(plotter.XYs, len(pts))
		for j, pt := range pts {
			xys[j] = plotter.XY{X: pt.X, Y: -pt.Y}
		}

		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", id, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)

		// Mark where the trail ends.
		last, err := plotter.NewScatter(xys[len(xys)-1:])
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", id, err)
		}
		last.GlyphStyle.Color = plotutil.Color(i)
		last.GlyphStyle.Shape = draw.CircleGlyph{}
		last.GlyphStyle.Radius = vg.Points(3)

		p.Add(line, last)
		p.Legend.Add("#"+strconv.FormatInt(id, 10), line)
	}
	return p, nil
}

// flippedTicks labels the negated Y values with their image coordinate.
type flippedTicks struct{}

func (flippedTicks) Ticks(min, max float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(min, max)
	for i := range ticks {
		if ticks[i].Label == "" {
			continue
		}
		v := -ticks[i].Value
		if v == 0 {
			v = 0 // no "-0"
		}
		ticks[i].Label = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ticks
}
