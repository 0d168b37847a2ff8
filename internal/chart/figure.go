// Package chart builds the metric chart: a Plotly figure for the browser and a
// PNG snapshot for model prompts and exports.
package chart

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
)

// Snapshot size used for prompts and ZIP exports.
const (
	SnapshotWidth  = 1200
	SnapshotHeight = 600
)

const (
	adaptivePadding = 0.1
	dateLayout      = "2006-01-02"
)

// Point is a nullable y value; nil marshals to null so Plotly leaves a gap.
type Point = *float64

type Line struct {
	Color string `json:"color"`
	Width int    `json:"width"`
	Dash  string `json:"dash,omitempty"`
}

type Marker struct {
	Color  string `json:"color"`
	Size   int    `json:"size"`
	Symbol string `json:"symbol"`
	Line   *Line  `json:"line,omitempty"`
}

// Trace is a Plotly scatter trace.
type Trace struct {
	Type   string   `json:"type"`
	X      []string `json:"x"`
	Y      []Point  `json:"y"`
	Mode   string   `json:"mode"`
	Name   string   `json:"name"`
	Line   *Line    `json:"line,omitempty"`
	Marker *Marker  `json:"marker,omitempty"`
}

type Axis struct {
	Title string      `json:"title"`
	Range *[2]float64 `json:"range,omitempty"`
}

type Layout struct {
	Title      string `json:"title"`
	XAxis      Axis   `json:"xaxis"`
	YAxis      Axis   `json:"yaxis"`
	HoverMode  string `json:"hovermode"`
	Template   string `json:"template"`
	Height     int    `json:"height"`
	ShowLegend bool   `json:"showlegend"`
}

// Figure is the JSON document handed to Plotly.newPlot.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// JSON encodes the figure.
func (f Figure) JSON() ([]byte, error) {
	return json.Marshal(f)
}

// BuildFigure assembles the chart for one metric: the series (interpolated for
// display when it has gaps), mean and median lines, limit lines unless the
// axis zooms to the data, and outlier markers.
func BuildFigure(m *analysis.MetricAnalysis) Figure {
	x := formatDates(m.Dates)
	y := m.Values
	if m.Display != nil {
		y = m.Display
	}
	var fig Figure
	fig.Data = append(fig.Data,
		Trace{Type: "scatter", X: x, Y: points(y), Mode: "lines", Name: m.Metric,
			Line: &Line{Color: "#1f77b4", Width: 2}},
		Trace{Type: "scatter", X: x, Y: constant(m.Stats.Mean, len(x)), Mode: "lines",
			Name: fmt.Sprintf("Mean (%.4f)", m.Stats.Mean), Line: &Line{Color: "green", Width: 2, Dash: "dash"}},
		Trace{Type: "scatter", X: x, Y: constant(m.Stats.Median, len(x)), Mode: "lines",
			Name: fmt.Sprintf("Median (%.4f)", m.Stats.Median), Line: &Line{Color: "orange", Width: 2, Dash: "dot"}},
	)

	if !m.Adaptive() {
		if anyValid(m.MaxLimit) {
			fig.Data = append(fig.Data, Trace{Type: "scatter", X: x, Y: points(m.MaxLimit), Mode: "lines",
				Name: "Max Limit", Line: &Line{Color: "red", Width: 2, Dash: "dashdot"}})
		}
		if anyValid(m.MinLimit) {
			fig.Data = append(fig.Data, Trace{Type: "scatter", X: x, Y: points(m.MinLimit), Mode: "lines",
				Name: "Min Limit", Line: &Line{Color: "purple", Width: 2, Dash: "dashdot"}})
		}
	}

	if len(m.Outliers) > 0 {
		fig.Data = append(fig.Data, Trace{Type: "scatter", X: m.Outliers.Dates(), Y: points(m.Outliers.Values()),
			Mode: "markers", Name: "Outliers (±2 SD)",
			Marker: &Marker{Color: "red", Size: 10, Symbol: "circle-open", Line: &Line{Color: "red", Width: 2}}})
	}

	fig.Layout = Layout{
		Title:     m.Metric + " Analysis",
		XAxis:     Axis{Title: "Date"},
		YAxis:     Axis{Title: "Value"},
		HoverMode: "x unified",
		Template:  "plotly_white",
		Height:    500,
	}
	if m.Adaptive() {
		r := YRange(m.Scale.DataRange)
		fig.Layout.YAxis.Range = &r
	}
	return fig
}

// YRange pads a data range by 10% on each side. A flat range is padded by
// 10% of its magnitude.
func YRange(r analysis.Range) [2]float64 {
	pad := (r.Max - r.Min) * adaptivePadding
	if r.Max == r.Min {
		pad = math.Abs(r.Min) * adaptivePadding
	}
	return [2]float64{r.Min - pad, r.Max + pad}
}

func formatDates(ds []time.Time) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Format(dateLayout)
	}
	return out
}

func points(vs []float64) []Point {
	out := make([]Point, len(vs))
	for i, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		v := v
		out[i] = &v
	}
	return out
}

func constant(v float64, n int) []Point {
	vs := make([]float64, n)
	for i := range vs {
		vs[i] = v
	}
	return points(vs)
}

func anyValid(vs []float64) bool {
	for _, v := range vs {
		if !math.IsNaN(v) {
			return true
		}
	}
	return false
}
