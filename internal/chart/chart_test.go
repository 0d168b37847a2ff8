package chart

import (
	"bytes"
	"encoding/json"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
)

func sample(adaptive bool) *analysis.MetricAnalysis {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, 5)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	m := &analysis.MetricAnalysis{
		Metric:   "VaR",
		Dates:    dates,
		Values:   []float64{1.0, 1.1, math.NaN(), 1.3, 1.2},
		Display:  []float64{1.0, 1.1, 1.2, 1.3, 1.2},
		MaxLimit: []float64{10, 10, 10, 10, 10},
		Stats:    analysis.StatSummary{Mean: 1.15, Median: 1.15, Std: 0.13, Min: 1.0, Max: 1.3, Count: 5},
		Outliers: analysis.OutlierSet{{Index: 3, Date: dates[3], Value: 1.3}},
	}
	if adaptive {
		m.Scale = &analysis.ScaleContext{NeedsAdaptiveScaling: true, DataRange: analysis.Range{Min: 1.0, Max: 1.3}}
	}
	return m
}

func names(f Figure) []string {
	var out []string
	for _, tr := range f.Data {
		out = append(out, tr.Name)
	}
	return out
}

func TestBuildFigureShowsLimitsWithoutAdaptive(t *testing.T) {
	fig := BuildFigure(sample(false))
	got := names(fig)
	want := []string{"VaR", "Mean (1.1500)", "Median (1.1500)", "Max Limit", "Outliers (±2 SD)"}
	if len(got) != len(want) {
		t.Fatalf("traces = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("trace %d = %q, want %q", i, got[i], want[i])
		}
	}
	if fig.Layout.YAxis.Range != nil {
		t.Fatalf("unexpected y range")
	}
	if *fig.Data[0].Y[2] != 1.2 {
		t.Fatalf("display series not used")
	}
}

func TestBuildFigureAdaptiveHidesLimits(t *testing.T) {
	fig := BuildFigure(sample(true))
	for _, n := range names(fig) {
		if n == "Max Limit" || n == "Min Limit" {
			t.Fatalf("limit trace drawn under adaptive scaling")
		}
	}
	r := fig.Layout.YAxis.Range
	if r == nil || math.Abs(r[0]-0.97) > 1e-9 || math.Abs(r[1]-1.33) > 1e-9 {
		t.Fatalf("range = %v", r)
	}
}

func TestYRangeFlat(t *testing.T) {
	r := YRange(analysis.Range{Min: -5, Max: -5})
	if r != [2]float64{-5.5, -4.5} {
		t.Fatalf("range = %v", r)
	}
}

func TestFigureJSONNullGaps(t *testing.T) {
	m := sample(false)
	m.Display = nil
	b, err := BuildFigure(m).JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var doc struct {
		Data []struct {
			Y []*float64 `json:"y"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Data[0].Y[2] != nil {
		t.Fatalf("gap not encoded as null")
	}
}

func TestSnapshotPNG(t *testing.T) {
	b, err := Renderer{}.Snapshot(sample(true))
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != SnapshotWidth || img.Bounds().Dy() != SnapshotHeight {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	if _, err := RenderPNG(Figure{}, 10, 10); err == nil {
		t.Fatalf("tiny canvas accepted")
	}
	if _, err := RenderPNG(Figure{Layout: Layout{Title: "empty"}}, 300, 200); err != nil {
		t.Fatalf("empty figure: %v", err)
	}
}

func TestSegmentsSplitOnGaps(t *testing.T) {
	m := sample(false)
	m.Display = nil
	fig := BuildFigure(m)
	runs := segments(fig.Data[0])
	if len(runs) != 2 || len(runs[0]) != 2 || len(runs[1]) != 2 {
		t.Fatalf("runs = %v", runs)
	}
	day := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	if runs[1][0].X != float64(day.Unix()) || runs[1][0].Y != 1.3 {
		t.Fatalf("second run starts at %+v", runs[1][0])
	}
	outliers := fig.Data[len(fig.Data)-1]
	if got := segments(outliers); len(got) != 1 || got[0][0].Y != 1.3 {
		t.Fatalf("outlier points = %v", got)
	}
}
