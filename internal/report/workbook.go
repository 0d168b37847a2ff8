package report

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
)

const statsSheet = "Statistics"

var statsHeader = []any{"Node", "Metric", "Mean", "Median", "Std", "Min", "Max", "Count", "Outliers", "Max Breaches", "Min Breaches", "Has Limits", "Adaptive Scale", "Insight Status"}

// StatisticsWorkbook writes one row per analysed metric across all groups
// into a single sheet and returns the XLSX bytes. Null statistics are left
// blank.
func StatisticsWorkbook(run *analysis.RunResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), statsSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(statsSheet, "A1", &statsHeader); err != nil {
		return nil, err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(statsSheet, 1, 1, style); err != nil {
		return nil, err
	}

	row := 2
	for _, g := range run.Groups {
		node := ""
		if run.Mode == analysis.ModeBatch {
			node = g.Name
		}
		for _, m := range g.Metrics {
			s := m.Stats
			var maxB, minB int
			for _, b := range m.Breaches {
				if b.Type == analysis.BreachMax {
					maxB = b.Count
				} else {
					minB = b.Count
				}
			}
			vals := []any{node, m.Metric, cell(s.Mean), cell(s.Median), cell(s.Std), cell(s.Min), cell(s.Max),
				s.Count, len(m.Outliers), maxB, minB, m.HasLimits, m.Adaptive(), insightStatus(&m)}
			addr, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(statsSheet, addr, &vals); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
			row++
		}
	}
	if err := f.AutoFilter(statsSheet, fmt.Sprintf("A1:N%d", max(row-1, 1)), nil); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cell(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func insightStatus(m *analysis.MetricAnalysis) string {
	switch {
	case m.Insight == nil:
		return "none"
	case m.InsightFailed():
		return "failed"
	case *m.Insight == analysis.LowExposureText:
		return "low exposure"
	case *m.Insight == analysis.DisabledText:
		return "disabled"
	case strings.TrimSpace(*m.Insight) == "":
		return "empty"
	default:
		return "generated"
	}
}
