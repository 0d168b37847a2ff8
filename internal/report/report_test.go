package report

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
)

var fixedNow = time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)

func strp(s string) *string { return &s }

func group(name string) analysis.GroupResult {
	dates := []time.Time{fixedNow.AddDate(0, 0, -2), fixedNow.AddDate(0, 0, -1), fixedNow}
	mk := func(metric string, insight string) analysis.MetricAnalysis {
		return analysis.MetricAnalysis{
			Metric: metric,
			Stats:  analysis.StatSummary{Mean: 1.5, Median: 1.5, Std: 0.5, Min: 1, Max: 2, Count: 3},
			Dates:  dates, Values: []float64{1, 1.5, 2},
			Insight: strp(insight),
		}
	}
	svar := mk("svar", "line one\nline <two>")
	svar.Breaches = []analysis.Breach{{Type: analysis.BreachMax, Count: 1, Dates: []string{"2024-03-01"}}}
	maxL, minL := 10.0, -2500.5
	svar.Scale = &analysis.ScaleContext{NeedsAdaptiveScaling: true, DataRange: analysis.Range{Min: 1, Max: 2},
		LimitPeriods: []analysis.LimitPeriod{{StartDate: dates[0], EndDate: dates[2], MaxLimit: &maxL, MinLimit: &minL}}}
	return analysis.GroupResult{
		Name:             name,
		Rows:             3,
		Metrics:          []analysis.MetricAnalysis{mk("VaR", "var insight"), svar},
		PortfolioSummary: strp("portfolio view"),
	}
}

func TestAnchorID(t *testing.T) {
	cases := map[string]string{
		"VaR":                                    "metric-var",
		"BasisSensiByCurrencyByPillar[EUR][1W]": "metric-basissensibycurrencybypillar-eur-1w",
		"  Delta / Gamma  ":                      "metric-delta-gamma",
	}
	for in, want := range cases {
		if got := AnchorID(in); got != want {
			t.Errorf("AnchorID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeNodeName(t *testing.T) {
	cases := map[string]string{
		"Node/A":     "Node_A",
		"Node: Test": "Node_ Test",
		"  spaces  ": "spaces",
		"   ":        "unnamed_node",
	}
	for in, want := range cases {
		if got := SanitizeNodeName(in); got != want {
			t.Errorf("SanitizeNodeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatGrouped(t *testing.T) {
	cases := map[float64]string{0: "0.00", 1234567.891: "1,234,567.89", -2500.5: "-2,500.50", 999.999: "1,000.00", -0.001: "0.00", 12.5: "12.50", -1e9: "-1,000,000,000.00"}
	for in, want := range cases {
		if got := FormatGrouped(in); got != want {
			t.Errorf("FormatGrouped(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestLimitAnnotationHTML(t *testing.T) {
	g := group("x")
	got := LimitAnnotationHTML(g.Metrics[1].Scale)
	if !strings.Contains(got, "Limit Values (not shown on chart - adaptive scaling applied)") {
		t.Fatalf("missing heading: %s", got)
	}
	if !strings.Contains(got, "<li><strong>2024-02-28 to 2024-03-01:</strong> Max: 10.00 | Min: -2,500.50</li>") {
		t.Fatalf("unexpected period line: %s", got)
	}
	if LimitAnnotationHTML(&analysis.ScaleContext{}) != "" || LimitAnnotationHTML(nil) != "" {
		t.Fatalf("expected empty annotation")
	}
}

func TestHTMLReport(t *testing.T) {
	g := group("single")
	b, err := RenderHTML(&g, "risk.csv", true, fixedNow)
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	s := string(b)
	if strings.Index(s, `id="metric-svar"`) > strings.Index(s, `id="metric-var"`) {
		t.Fatalf("metrics not sorted case-insensitively")
	}
	for _, want := range []string{
		`href="#metric-var"`,
		"Limit Breaches Detected",
		"Limit Values (not shown on chart",
		"line one<br><br>line &lt;two&gt;",
		"Risk Portfolio Summary",
		"AI Enabled",
		"Plotly.newPlot",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("report missing %q", want)
		}
	}

	g.Metrics = g.Metrics[:1]
	b, _ = RenderHTML(&g, "risk.csv", true, fixedNow)
	if strings.Contains(string(b), "Risk Portfolio Summary") {
		t.Fatalf("portfolio shown for a single metric")
	}
	g = group("single")
	b, _ = RenderHTML(&g, "risk.csv", false, fixedNow)
	if strings.Contains(string(b), "AI-Generated Insights") || !strings.Contains(string(b), "AI Disabled") {
		t.Fatalf("insights shown with model commentary off")
	}
}

func TestSummaryText(t *testing.T) {
	g := group("Desk A")
	s := SummaryText(&g, "risk.csv", "Desk A", true, fixedNow)
	for _, want := range []string{
		"Risk Metrics Analysis Summary - Desk A\nGenerated: 2024-03-01 10:15:00\nSource File: risk.csv\nNode: Desk A\n",
		"Metrics Analyzed: VaR, svar",
		"AI Analysis Mode: Enabled (Google Gemini)",
		"svar ANALYSIS\n" + rule,
		"- Standard Deviation: 0.5000",
		"Limit Breaches:\n  - Max limit breached 1 times on 2024-03-01",
		"AI Insights:\nvar insight",
		"RISK PORTFOLIO SUMMARY - Desk A\n" + rule + "\n\nportfolio view\n",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("summary missing %q\n%s", want, s)
		}
	}
	off := SummaryText(&g, "risk.csv", "", false, fixedNow)
	if strings.Contains(off, "AI Insights") || strings.Contains(off, "PORTFOLIO") || !strings.Contains(off, "AI Analysis Mode: Disabled") {
		t.Fatalf("disabled summary wrong:\n%s", off)
	}
}

type stubSnap struct{ fail string }

func (s stubSnap) Snapshot(m *analysis.MetricAnalysis) ([]byte, error) {
	if m.Metric == s.fail {
		return nil, errors.New("render failed")
	}
	return []byte("png:" + m.Metric), nil
}

func zipNames(t *testing.T, b []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		t.Fatalf("zip reader: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestExportZIPLayout(t *testing.T) {
	run := &analysis.RunResult{Mode: analysis.ModeSingle, Source: "risk.csv", UseLLM: true, Groups: []analysis.GroupResult{group("risk.csv")}}
	run.Groups[0].Metrics[0].Metric = "Delta/Gamma"
	var buf bytes.Buffer
	e := &Exporter{Snapshots: stubSnap{}, Log: zerolog.Nop(), Now: func() time.Time { return fixedNow }}
	if err := e.ExportZIP(&buf, run); err != nil {
		t.Fatalf("ExportZIP: %v", err)
	}
	got := strings.Join(zipNames(t, buf.Bytes()), ",")
	want := "charts/Delta_Gamma_chart.png,charts/svar_chart.png,risk_analysis_report.html,statistics.xlsx,summary.txt"
	if got != want {
		t.Fatalf("entries = %s", got)
	}
}

func TestExportBatchZIPLayout(t *testing.T) {
	run := &analysis.RunResult{Mode: analysis.ModeBatch, Source: "risk.csv", UseLLM: false,
		Groups: []analysis.GroupResult{group("Node/A"), group("B")}}
	var buf bytes.Buffer
	e := &Exporter{Snapshots: stubSnap{fail: "svar"}, Log: zerolog.Nop()}
	if err := e.Export(&buf, run); err != nil {
		t.Fatalf("Export: %v", err)
	}
	got := strings.Join(zipNames(t, buf.Bytes()), ",")
	want := "B/charts/VaR_chart.png,B/report.html,B/summary.txt,Node_A/charts/VaR_chart.png,Node_A/report.html,Node_A/summary.txt,statistics.xlsx"
	if got != want {
		t.Fatalf("entries = %s", got)
	}
}

func TestStatisticsWorkbook(t *testing.T) {
	run := &analysis.RunResult{Mode: analysis.ModeBatch, Groups: []analysis.GroupResult{group("A")}}
	run.Groups[0].Metrics[0].Insight = strp("Error generating AI analysis: boom")
	b, err := StatisticsWorkbook(run)
	if err != nil {
		t.Fatalf("StatisticsWorkbook: %v", err)
	}
	f, err := excelize.OpenReader(io.NopCloser(bytes.NewReader(b)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(statsSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 || rows[0][1] != "Metric" || rows[1][0] != "A" || rows[1][1] != "VaR" {
		t.Fatalf("rows = %v", rows)
	}
	if rows[1][13] != "failed" || rows[2][9] != "1" {
		t.Fatalf("row values = %v / %v", rows[1], rows[2])
	}
}
