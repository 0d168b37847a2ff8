package analysis

import (
	"math"
	"reflect"
	"testing"
)

var nan = math.NaN()

func TestForwardFill(t *testing.T) {
	got := ForwardFill([]float64{nan, 1, nan, nan, 2, nan})
	if !math.IsNaN(got[0]) {
		t.Fatalf("leading gap filled: %v", got)
	}
	want := []float64{1, 1, 1, 2, 2}
	if !reflect.DeepEqual(got[1:], want) {
		t.Fatalf("ForwardFill = %v", got)
	}
	if ForwardFill(nil) != nil {
		t.Fatalf("nil input should stay nil")
	}
}

func TestCheckLimitBreaches(t *testing.T) {
	d := days(5)
	values := []float64{1, 5, nan, 7, -3}
	maxLim := ForwardFill([]float64{4, nan, nan, 6, nan})
	minLim := []float64{0, 0, 0, 0, 0}
	got := CheckLimitBreaches(d, values, maxLim, minLim)
	if len(got) != 2 {
		t.Fatalf("breaches = %+v", got)
	}
	if got[0].Type != BreachMax || got[0].Count != 2 || !reflect.DeepEqual(got[0].Dates, []string{"2024-01-02", "2024-01-04"}) {
		t.Fatalf("max breach = %+v", got[0])
	}
	if got[1].Type != BreachMin || got[1].Count != 1 || got[1].Dates[0] != "2024-01-05" {
		t.Fatalf("min breach = %+v", got[1])
	}
	for _, b := range got {
		if len(b.Dates) != b.Count {
			t.Fatalf("dates/count mismatch: %+v", b)
		}
	}
}

func TestCheckLimitBreachesStrictAndAbsent(t *testing.T) {
	d := days(3)
	values := []float64{5, 5, 5}
	if got := CheckLimitBreaches(d, values, []float64{5, 5, 5}, []float64{5, 5, 5}); len(got) != 0 {
		t.Fatalf("equal values must not breach: %+v", got)
	}
	if got := CheckLimitBreaches(d, values, nil, nil); len(got) != 0 {
		t.Fatalf("absent limits produced %+v", got)
	}
	if got := CheckLimitBreaches(d, values, []float64{nan, nan, 1}, nil); len(got) != 1 || got[0].Count != 1 {
		t.Fatalf("null limit rows should be skipped: %+v", got)
	}
}

func TestCalculateScaleContext(t *testing.T) {
	d := days(4)
	data := []float64{1.0, 1.1, 1.2, 1.05}
	maxLim := []float64{100, 100, 100, 100}
	sc := CalculateScaleContext(data, d, maxLim, nil)
	if !sc.NeedsAdaptiveScaling {
		t.Fatalf("expected adaptive scaling, ratio %v", sc.ScaleRatio)
	}
	if sc.DataRange != (Range{Min: 1.0, Max: 1.2}) || sc.LimitRange != (Range{Min: 1.0, Max: 100}) {
		t.Fatalf("ranges = %+v / %+v", sc.DataRange, sc.LimitRange)
	}
	if len(sc.LimitPeriods) != 1 || *sc.LimitPeriods[0].MaxLimit != 100 || sc.LimitPeriods[0].MinLimit != nil {
		t.Fatalf("periods = %+v", sc.LimitPeriods)
	}

	near := CalculateScaleContext(data, d, []float64{1.5, 1.5, 1.5, 1.5}, nil)
	if near.NeedsAdaptiveScaling {
		t.Fatalf("limit close to data should not zoom, ratio %v", near.ScaleRatio)
	}
}

func TestCalculateScaleContextWithoutLimitsNeverZooms(t *testing.T) {
	d := days(3)
	for _, data := range [][]float64{{0, 0, 0}, {1, 1000, -1000}, {nan, 2, nan}} {
		sc := CalculateScaleContext(data, d, nil, nil)
		if sc.NeedsAdaptiveScaling {
			t.Fatalf("no limits but adaptive scaling for %v", data)
		}
	}
	empty := CalculateScaleContext([]float64{nan, nan}, days(2), []float64{1, 1}, nil)
	if empty.NeedsAdaptiveScaling || empty.DataRange != (Range{}) || empty.LimitPeriods != nil {
		t.Fatalf("all-null data context = %+v", empty)
	}
}

func TestBuildLimitPeriodsForwardFilled(t *testing.T) {
	d := days(5)
	maxLim := ForwardFill([]float64{10, nan, nan, 20, nan})
	periods := BuildLimitPeriods(d, maxLim, nil)
	if len(periods) != 2 {
		t.Fatalf("periods = %+v", periods)
	}
	p0, p1 := periods[0], periods[1]
	if !p0.StartDate.Equal(d[0]) || !p0.EndDate.Equal(d[2]) || *p0.MaxLimit != 10 {
		t.Fatalf("first period = %+v", p0)
	}
	if !p1.StartDate.Equal(d[3]) || !p1.EndDate.Equal(d[4]) || *p1.MaxLimit != 20 {
		t.Fatalf("second period = %+v", p1)
	}
}

func TestBuildLimitPeriodsAbsentRowsSplitRuns(t *testing.T) {
	d := days(5)
	maxLim := []float64{5, 5, nan, 5, 5}
	minLim := []float64{nan, nan, nan, 1, 1}
	periods := BuildLimitPeriods(d, maxLim, minLim)
	if len(periods) != 2 {
		t.Fatalf("periods = %+v", periods)
	}
	if !periods[0].EndDate.Equal(d[1]) || periods[0].MinLimit != nil {
		t.Fatalf("first period = %+v", periods[0])
	}
	if !periods[1].StartDate.Equal(d[3]) || *periods[1].MinLimit != 1 {
		t.Fatalf("second period = %+v", periods[1])
	}
}

func TestInterpolateForDisplay(t *testing.T) {
	d := days(5)
	d[2] = d[1].AddDate(0, 0, 3) // uneven spacing: gap at index 2 is weighted by time
	d[3] = d[2].AddDate(0, 0, 1)
	d[4] = d[3].AddDate(0, 0, 1)
	series := []float64{nan, 0, nan, 4, nan}
	got := InterpolateForDisplay(d, series)
	if !math.IsNaN(got[0]) {
		t.Fatalf("leading gap filled: %v", got)
	}
	if !approx(got[2], 3, 1e-9) {
		t.Fatalf("interpolated value = %v, want 3", got[2])
	}
	if got[4] != 4 {
		t.Fatalf("trailing value = %v", got[4])
	}
	if !math.IsNaN(series[2]) {
		t.Fatalf("input mutated")
	}
}
