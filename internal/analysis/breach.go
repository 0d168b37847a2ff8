package analysis

import (
	"math"
	"time"
)

// BreachType names the side of a limit.
type BreachType string

const (
	BreachMax BreachType = "max"
	BreachMin BreachType = "min"
)

// Breach summarises all violations of one limit side.
type Breach struct {
	Type  BreachType `json:"type"`
	Count int        `json:"count"`
	Dates []string   `json:"dates"`
}

// ForwardFill carries the last known value over NaN gaps: a limit persists
// until it is explicitly changed. Leading gaps stay NaN. The input is not
// modified; a nil input returns nil.
func ForwardFill(series []float64) []float64 {
	if series == nil {
		return nil
	}
	out := make([]float64, len(series))
	last := math.NaN()
	for i, v := range series {
		if !math.IsNaN(v) {
			last = v
		}
		out[i] = last
	}
	return out
}

// CheckLimitBreaches returns at most one Breach per provided side, max first.
// A nil limit slice means that side is absent. Limits are expected to be
// forward-filled already. Comparison is strict, and a row where either the
// value or the limit is missing never breaches.
func CheckLimitBreaches(dates []time.Time, values, maxLimit, minLimit []float64) []Breach {
	var out []Breach
	if maxLimit != nil {
		if b, ok := collectBreaches(BreachMax, dates, values, maxLimit, func(v, l float64) bool { return v > l }); ok {
			out = append(out, b)
		}
	}
	if minLimit != nil {
		if b, ok := collectBreaches(BreachMin, dates, values, minLimit, func(v, l float64) bool { return v < l }); ok {
			out = append(out, b)
		}
	}
	return out
}

func collectBreaches(kind BreachType, dates []time.Time, values, limit []float64, violates func(v, l float64) bool) (Breach, bool) {
	b := Breach{Type: kind}
	for i, v := range values {
		if i >= len(limit) || math.IsNaN(v) || math.IsNaN(limit[i]) {
			continue
		}
		if violates(v, limit[i]) {
			b.Count++
			d := ""
			if i < len(dates) {
				d = dates[i].Format(dateLayout)
			}
			b.Dates = append(b.Dates, d)
		}
	}
	return b, b.Count > 0
}

// HasMeaningfulLimits reports whether metric has a limit column holding at
// least one non-missing, non-zero value.
func HasMeaningfulLimits(t *Table, metric string) bool {
	for _, suffix := range []string{LimitMaxSuffix, LimitMinSuffix} {
		lim, ok := t.Numeric(metric + suffix)
		if !ok {
			continue
		}
		for _, v := range lim {
			if !math.IsNaN(v) && v != 0 {
				return true
			}
		}
	}
	return false
}
