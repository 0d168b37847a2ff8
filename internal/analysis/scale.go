package analysis

import (
	"math"
	"time"
)

// AdaptiveScaleThreshold is the data/limit range ratio below which a chart
// zooms to the data.
const AdaptiveScaleThreshold = 0.10

// Range is a closed [Min, Max] interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Width returns Max - Min.
func (r Range) Width() float64 { return r.Max - r.Min }

// LimitPeriod is a maximal run of rows over which both limit values stayed
// constant. A nil side means the limit was absent for the whole run.
type LimitPeriod struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	MaxLimit  *float64  `json:"max_limit,omitempty"`
	MinLimit  *float64  `json:"min_limit,omitempty"`
}

// ScaleContext tells the presentation layer whether to zoom a metric's chart
// and which off-scale limits to describe instead.
type ScaleContext struct {
	NeedsAdaptiveScaling bool          `json:"needs_adaptive_scaling"`
	DataRange            Range         `json:"data_range"`
	LimitRange           Range         `json:"limit_range"`
	ScaleRatio           float64       `json:"scale_ratio"`
	LimitPeriods         []LimitPeriod `json:"limit_periods"`
}

// CalculateScaleContext decides whether limits would flatten the data on a
// shared axis. maxLimit and minLimit are nil when the metric has no such
// column; they should be forward-filled.
func CalculateScaleContext(data []float64, dates []time.Time, maxLimit, minLimit []float64) ScaleContext {
	dataMin, dataMax, ok := validRange(data)
	if !ok {
		return ScaleContext{ScaleRatio: 1}
	}
	limits := Range{Min: dataMin, Max: dataMax}
	hasLimits := false
	if _, hi, ok := validRange(maxLimit); ok {
		limits.Max = math.Max(limits.Max, hi)
		hasLimits = true
	}
	if lo, _, ok := validRange(minLimit); ok {
		limits.Min = math.Min(limits.Min, lo)
		hasLimits = true
	}

	ratio := 1.0
	if w := limits.Width(); w > 0 {
		ratio = (dataMax - dataMin) / w
	}
	return ScaleContext{
		NeedsAdaptiveScaling: hasLimits && ratio < AdaptiveScaleThreshold,
		DataRange:            Range{Min: dataMin, Max: dataMax},
		LimitRange:           limits,
		ScaleRatio:           ratio,
		LimitPeriods:         BuildLimitPeriods(dates, maxLimit, minLimit),
	}
}

// BuildLimitPeriods groups consecutive rows sharing the same (max, min) limit
// pair. Runs where both sides are absent produce no period but still end the
// preceding run.
func BuildLimitPeriods(dates []time.Time, maxLimit, minLimit []float64) []LimitPeriod {
	if len(dates) == 0 {
		return nil
	}
	at := func(s []float64, i int) *float64 {
		if i >= len(s) || math.IsNaN(s[i]) {
			return nil
		}
		v := s[i]
		return &v
	}
	var periods []LimitPeriod
	flush := func(start, end int, hi, lo *float64) {
		if hi == nil && lo == nil {
			return
		}
		periods = append(periods, LimitPeriod{StartDate: dates[start], EndDate: dates[end], MaxLimit: hi, MinLimit: lo})
	}

	start := 0
	curMax, curMin := at(maxLimit, 0), at(minLimit, 0)
	for i := 1; i < len(dates); i++ {
		hi, lo := at(maxLimit, i), at(minLimit, i)
		if !sameLimit(hi, curMax) || !sameLimit(lo, curMin) {
			flush(start, i-1, curMax, curMin)
			start, curMax, curMin = i, hi, lo
		}
	}
	flush(start, len(dates)-1, curMax, curMin)
	return periods
}

func sameLimit(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func validRange(s []float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range s {
		if math.IsNaN(v) {
			continue
		}
		ok = true
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, ok
}

// InterpolateForDisplay fills interior NaN gaps by linear interpolation in
// time between the surrounding observations. Leading gaps stay NaN and
// trailing gaps repeat the last observation. The result is only meant for
// charts; statistics always use the original series.
func InterpolateForDisplay(dates []time.Time, series []float64) []float64 {
	out := append([]float64(nil), series...)
	prev := -1
	for i, v := range series {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			span := dates[i].Sub(dates[prev]).Seconds()
			for j := prev + 1; j < i; j++ {
				if span == 0 {
					out[j] = series[prev]
					continue
				}
				frac := dates[j].Sub(dates[prev]).Seconds() / span
				out[j] = series[prev] + frac*(v-series[prev])
			}
		}
		prev = i
	}
	if prev >= 0 {
		for j := prev + 1; j < len(out); j++ {
			out[j] = series[prev]
		}
	}
	return out
}

// HasGaps reports whether series contains at least one NaN.
func HasGaps(series []float64) bool {
	for _, v := range series {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
