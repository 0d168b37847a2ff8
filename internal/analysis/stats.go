package analysis

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// StatSummary holds the summary statistics of one metric series. Count is
// the total series length including missing values.
type StatSummary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// Outlier is an observation outside mean ± 2·std.
type Outlier struct {
	Index int       `json:"index"`
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// OutlierSet lists outliers in row order.
type OutlierSet []Outlier

// Values returns the outlier values in row order.
func (o OutlierSet) Values() []float64 {
	out := make([]float64, len(o))
	for i, v := range o {
		out[i] = v.Value
	}
	return out
}

// Dates returns the outlier dates formatted as YYYY-MM-DD.
func (o OutlierSet) Dates() []string {
	out := make([]string, len(o))
	for i, v := range o {
		out[i] = v.Date.Format(dateLayout)
	}
	return out
}

const (
	dateLayout   = "2006-01-02"
	outlierSigma = 2.0
)

// CalculateStatistics computes the summary of series ignoring NaN entries
// and flags values strictly outside mean ± 2·std. Std is the sample standard
// deviation. With std == 0, or fewer than two valid values, there are no
// outliers. dates may be nil, in which case outlier dates are zero.
func CalculateStatistics(series []float64, dates []time.Time) (StatSummary, OutlierSet) {
	valid := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	s := StatSummary{Count: len(series)}
	if len(valid) == 0 {
		nan := math.NaN()
		s.Mean, s.Median, s.Std, s.Min, s.Max = nan, nan, nan, nan, nan
		return s, nil
	}

	s.Min, s.Max = floats.Min(valid), floats.Max(valid)
	s.Median = median(valid)
	if len(valid) > 1 {
		// stat.StdDev is the unbiased (n-1) estimate.
		s.Mean, s.Std = stat.MeanStdDev(valid, nil)
	} else {
		s.Mean, s.Std = valid[0], math.NaN()
	}

	if !(s.Std > 0) {
		return s, nil
	}
	upper := s.Mean + outlierSigma*s.Std
	lower := s.Mean - outlierSigma*s.Std
	var out OutlierSet
	for i, v := range series {
		if math.IsNaN(v) {
			continue
		}
		if v > upper || v < lower {
			o := Outlier{Index: i, Value: v}
			if i < len(dates) {
				o.Date = dates[i]
			}
			out = append(out, o)
		}
	}
	return s, out
}

func median(valid []float64) float64 {
	sorted := append([]float64(nil), valid...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// LowExposure reports whether a metric carries too little signal to be worth
// commentary: no valid observations, or at least 95% of them exactly zero.
func LowExposure(series []float64) (bool, float64) {
	valid, zeros := 0, 0
	for _, v := range series {
		if math.IsNaN(v) {
			continue
		}
		valid++
		if v == 0 {
			zeros++
		}
	}
	if valid == 0 {
		return true, 0
	}
	ratio := float64(zeros) / float64(valid)
	return ratio >= 0.95, ratio
}
