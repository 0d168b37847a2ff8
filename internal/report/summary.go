package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
)

const (
	timeLayout   = "2006-01-02 15:04:05"
	noInsight    = "No AI insight generated."
	aiModeOn     = "Enabled (Google Gemini)"
	aiModeOff    = "Disabled"
	ruleWidth    = 80
	maxListDates = 10
)

var rule = strings.Repeat("=", ruleWidth)

// SummaryText renders the plain-text summary for one group. node is empty in
// single mode.
func SummaryText(g *analysis.GroupResult, source, node string, useLLM bool, now time.Time) string {
	var b strings.Builder
	names := make([]string, len(g.Metrics))
	for i, m := range g.Metrics {
		names[i] = m.Metric
	}
	mode := aiModeOff
	if useLLM {
		mode = aiModeOn
	}
	if node != "" {
		fmt.Fprintf(&b, "Risk Metrics Analysis Summary - %s\n", node)
	} else {
		b.WriteString("Risk Metrics Analysis Summary\n")
	}
	fmt.Fprintf(&b, "Generated: %s\n", now.Format(timeLayout))
	fmt.Fprintf(&b, "Source File: %s\n", source)
	if node != "" {
		fmt.Fprintf(&b, "Node: %s\n", node)
	}
	fmt.Fprintf(&b, "Metrics Analyzed: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "AI Analysis Mode: %s\n\n%s\n\n", mode, rule)

	for _, m := range g.Metrics {
		s := m.Stats
		fmt.Fprintf(&b, "\n%s ANALYSIS\n%s\n\nStatistics:\n", m.Metric, rule)
		fmt.Fprintf(&b, "- Mean: %.4f\n- Median: %.4f\n- Standard Deviation: %.4f\n- Min: %.4f\n- Max: %.4f",
			s.Mean, s.Median, s.Std, s.Min, s.Max)
		if len(m.Breaches) > 0 {
			b.WriteString("\n\nLimit Breaches:")
			for _, br := range m.Breaches {
				fmt.Fprintf(&b, "\n  - %s", breachLine(br))
			}
		}
		b.WriteString("\n\n")
		if useLLM {
			fmt.Fprintf(&b, "\n\nAI Insights:\n%s\n\n%s\n\n", insightOr(m.Insight), rule)
		} else {
			fmt.Fprintf(&b, "\n\n%s\n\n", rule)
		}
	}

	if useLLM && g.PortfolioSummary != nil && *g.PortfolioSummary != "" {
		title := "RISK PORTFOLIO SUMMARY"
		if node != "" {
			title += " - " + node
		}
		fmt.Fprintf(&b, "\n%s\n%s\n\n%s\n", title, rule, *g.PortfolioSummary)
	}
	return b.String()
}

func breachLine(br analysis.Breach) string {
	label := "Min"
	if br.Type == analysis.BreachMax {
		label = "Max"
	}
	return fmt.Sprintf("%s limit breached %d times on %s", label, br.Count, strings.Join(br.Dates, ", "))
}

func insightOr(s *string) string {
	if s == nil || *s == "" {
		return noInsight
	}
	return *s
}
