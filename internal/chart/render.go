package chart

import (
	"bytes"
	"errors"
	"image/color"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
)

var palette = map[string]color.RGBA{
	"#1f77b4": {0x1f, 0x77, 0xb4, 0xff},
	"green":   {0x00, 0x80, 0x00, 0xff},
	"orange":  {0xff, 0xa5, 0x00, 0xff},
	"red":     {0xff, 0x00, 0x00, 0xff},
	"purple":  {0x80, 0x00, 0x80, 0xff},
}

var fallbackColor = color.RGBA{0x44, 0x44, 0x44, 0xff}

// dash patterns in points, matching the Plotly names
var dashes = map[string][]vg.Length{
	"dash":    {vg.Points(8), vg.Points(5)},
	"dot":     {vg.Points(2), vg.Points(3)},
	"dashdot": {vg.Points(8), vg.Points(3), vg.Points(2), vg.Points(3)},
}

const minSnapshotSide = 120

// RenderPNG draws fig at w x h pixels with title, date axis and legend.
func RenderPNG(fig Figure, w, h int) ([]byte, error) {
	if w < minSnapshotSide || h < minSnapshotSide {
		return nil, errors.New("chart: snapshot size too small")
	}
	p := plot.New()
	p.Title.Text = fig.Layout.Title
	p.X.Label.Text = fig.Layout.XAxis.Title
	p.Y.Label.Text = fig.Layout.YAxis.Title
	p.X.Tick.Marker = plot.TimeTicks{Format: dateLayout}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for _, tr := range fig.Data {
		switch tr.Mode {
		case "lines":
			if err := addLine(p, tr); err != nil {
				return nil, err
			}
		case "markers":
			if err := addMarkers(p, tr); err != nil {
				return nil, err
			}
		}
	}
	if r := fig.Layout.YAxis.Range; r != nil && r[1] > r[0] {
		p.Y.Min, p.Y.Max = r[0], r[1]
	}

	// At 72 dpi one point is one pixel.
	c := vgimg.NewWith(vgimg.UseWH(vg.Points(float64(w)), vg.Points(float64(h))), vgimg.UseDPI(72))
	p.Draw(draw.New(c))
	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// addLine adds one plotter.Line per run of consecutive non-null points; the
// legend entry is taken from the first run.
func addLine(p *plot.Plot, tr Trace) error {
	style := draw.LineStyle{Color: palette["#1f77b4"], Width: vg.Points(2)}
	if tr.Line != nil {
		style = draw.LineStyle{Color: colorByName(tr.Line.Color), Width: vg.Points(float64(tr.Line.Width)), Dashes: dashes[tr.Line.Dash]}
	}
	legend := false
	for _, run := range segments(tr) {
		l, err := plotter.NewLine(run)
		if err != nil {
			return err
		}
		l.LineStyle = style
		p.Add(l)
		if !legend {
			p.Legend.Add(tr.Name, l)
			legend = true
		}
	}
	return nil
}

func addMarkers(p *plot.Plot, tr Trace) error {
	var pts plotter.XYs
	for _, run := range segments(tr) {
		pts = append(pts, run...)
	}
	if len(pts) == 0 {
		return nil
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	s.GlyphStyle = draw.GlyphStyle{Color: palette["red"], Radius: vg.Points(5), Shape: draw.RingGlyph{}}
	if tr.Marker != nil {
		s.GlyphStyle.Color = colorByName(tr.Marker.Color)
		s.GlyphStyle.Radius = vg.Points(float64(tr.Marker.Size) / 2)
	}
	p.Add(s)
	p.Legend.Add(tr.Name, s)
	return nil
}

// segments splits a trace into runs of points with a parseable date and a
// non-null value. X is seconds since the epoch, as plot.TimeTicks expects.
func segments(tr Trace) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	flush := func() {
		if len(cur) > 0 {
			out = append(out, cur)
			cur = nil
		}
	}
	for i, y := range tr.Y {
		if y == nil || i >= len(tr.X) {
			flush()
			continue
		}
		d, err := time.Parse(dateLayout, tr.X[i])
		if err != nil {
			flush()
			continue
		}
		cur = append(cur, plotter.XY{X: float64(d.Unix()), Y: *y})
	}
	flush()
	return out
}

func colorByName(name string) color.Color {
	if c, ok := palette[name]; ok {
		return c
	}
	return fallbackColor
}

// Renderer implements analysis.Snapshotter.
type Renderer struct {
	Width, Height int
}

var _ analysis.Snapshotter = Renderer{}

// Snapshot renders the metric's chart at the configured size.
func (r Renderer) Snapshot(m *analysis.MetricAnalysis) ([]byte, error) {
	w, h := r.Width, r.Height
	if w == 0 || h == 0 {
		w, h = SnapshotWidth, SnapshotHeight
	}
	return RenderPNG(BuildFigure(m), w, h)
}
