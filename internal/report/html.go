package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/chart"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTmpl = template.Must(template.ParseFS(templateFS, "templates/report.html.tmpl"))

type breachView struct {
	Label string
	Count int
	Dates string
	More  bool
}

type metricView struct {
	Name          string
	Anchor        string
	PlotID        string
	Mean          string
	Median        string
	Std           string
	Min           string
	Max           string
	OutlierCount  int
	OutlierSample string
	OutlierDates  string
	OutlierMore   bool
	Breaches      []breachView
	Annotation    template.HTML
	Figure        template.JS
	Insight       template.HTML
}

type reportView struct {
	Title       string
	MetricCount int
	UseLLM      bool
	Metrics     []metricView
	Portfolio   template.HTML
	GeneratedAt string
}

// HTML writes the self-contained report for one group. Metrics are listed
// alphabetically (case-insensitive); the portfolio summary is shown only when
// model commentary was on and more than one metric was analysed.
func HTML(w io.Writer, g *analysis.GroupResult, title string, useLLM bool, now time.Time) error {
	sorted := make([]*analysis.MetricAnalysis, len(g.Metrics))
	for i := range g.Metrics {
		sorted[i] = &g.Metrics[i]
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Metric) < strings.ToLower(sorted[j].Metric)
	})

	view := reportView{Title: title, MetricCount: len(sorted), UseLLM: useLLM, GeneratedAt: now.Format(timeLayout)}
	for _, m := range sorted {
		mv, err := buildMetricView(m)
		if err != nil {
			return err
		}
		view.Metrics = append(view.Metrics, mv)
	}
	if useLLM && len(g.Metrics) > 1 && g.PortfolioSummary != nil && *g.PortfolioSummary != "" {
		view.Portfolio = paragraphs(*g.PortfolioSummary)
	}
	return reportTmpl.Execute(w, view)
}

// RenderHTML is HTML into a byte slice.
func RenderHTML(g *analysis.GroupResult, title string, useLLM bool, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := HTML(&buf, g, title, useLLM, now); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildMetricView(m *analysis.MetricAnalysis) (metricView, error) {
	fig, err := chart.BuildFigure(m).JSON()
	if err != nil {
		return metricView{}, fmt.Errorf("chart %s: %w", m.Metric, err)
	}
	s := m.Stats
	mv := metricView{
		Name:         m.Metric,
		Anchor:       AnchorID(m.Metric),
		PlotID:       "plot-" + strings.ReplaceAll(m.Metric, "/", "_"),
		Mean:         fmt.Sprintf("%.4f", s.Mean),
		Median:       fmt.Sprintf("%.4f", s.Median),
		Std:          fmt.Sprintf("%.4f", s.Std),
		Min:          fmt.Sprintf("%.4f", s.Min),
		Max:          fmt.Sprintf("%.4f", s.Max),
		OutlierCount: len(m.Outliers),
		Figure:       template.JS(fig),
		Insight:      paragraphs(insightOr(m.Insight)),
	}
	if len(m.Outliers) > 0 {
		vals := m.Outliers.Values()
		if len(vals) > 5 {
			vals = vals[:5]
		}
		sample := make([]string, len(vals))
		for i, v := range vals {
			sample[i] = fmt.Sprintf("%.4f", v)
		}
		mv.OutlierSample = strings.Join(sample, ", ")
		mv.OutlierDates, mv.OutlierMore = firstDates(m.OutlierDates)
	}
	for _, b := range m.Breaches {
		label := "Min"
		if b.Type == analysis.BreachMax {
			label = "Max"
		}
		dates, more := firstDates(b.Dates)
		mv.Breaches = append(mv.Breaches, breachView{Label: label, Count: b.Count, Dates: dates, More: more})
	}
	if m.Adaptive() {
		mv.Annotation = template.HTML(LimitAnnotationHTML(m.Scale))
	}
	return mv, nil
}

func firstDates(ds []string) (string, bool) {
	if len(ds) > maxListDates {
		return strings.Join(ds[:maxListDates], ", "), true
	}
	return strings.Join(ds, ", "), false
}

// paragraphs escapes text and turns line breaks into paragraph spacing.
func paragraphs(text string) template.HTML {
	escaped := template.HTMLEscapeString(text)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br><br>"))
}
