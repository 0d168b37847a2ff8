// Package report renders analysis results as an HTML report, a plain-text
// summary, a statistics workbook, and ZIP bundles of all three plus charts.
package report

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
)

var (
	nonAnchorChars = regexp.MustCompile(`[^a-z0-9]+`)
	badPathChars   = regexp.MustCompile(`[<>:"/\\|?*]`)
)

// AnchorID returns a stable HTML id for a metric, e.g.
// "BasisSensiByCurrencyByPillar[EUR][1W]" -> "metric-basissensibycurrencybypillar-eur-1w".
func AnchorID(metric string) string {
	a := nonAnchorChars.ReplaceAllString(strings.ToLower(metric), "-")
	return "metric-" + strings.Trim(a, "-")
}

// SanitizeNodeName makes a node value safe as a folder name.
func SanitizeNodeName(node string) string {
	s := strings.TrimSpace(badPathChars.ReplaceAllString(node, "_"))
	if s == "" {
		return "unnamed_node"
	}
	return s
}

// ChartFileName is the PNG name used for a metric inside exports.
func ChartFileName(metric string) string {
	return strings.ReplaceAll(metric, "/", "_") + "_chart.png"
}

// LimitAnnotationHTML lists the limit values that an adaptively scaled chart
// leaves off-screen, one line per limit period. It returns "" when there is
// nothing to list.
func LimitAnnotationHTML(sc *analysis.ScaleContext) string {
	if sc == nil || len(sc.LimitPeriods) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<div style="background-color: #fff3cd; border: 1px solid #ffc107; border-radius: 4px; padding: 10px; margin: 10px 0;">` + "\n")
	b.WriteString("<strong>Limit Values (not shown on chart - adaptive scaling applied):</strong>\n")
	b.WriteString(`<ul style="margin: 5px 0; padding-left: 20px;">` + "\n")
	for _, p := range sc.LimitPeriods {
		var parts []string
		if p.MaxLimit != nil {
			parts = append(parts, "Max: "+FormatGrouped(*p.MaxLimit))
		}
		if p.MinLimit != nil {
			parts = append(parts, "Min: "+FormatGrouped(*p.MinLimit))
		}
		if len(parts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "<li><strong>%s to %s:</strong> %s</li>\n",
			p.StartDate.Format("2006-01-02"), p.EndDate.Format("2006-01-02"), html.EscapeString(strings.Join(parts, " | ")))
	}
	b.WriteString("</ul></div>")
	return b.String()
}

var grouped = message.NewPrinter(language.English)

// FormatGrouped formats v with two decimals and comma thousands separators.
func FormatGrouped(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprintf("%.2f", v)
	}
	s := grouped.Sprintf("%.2f", v)
	if s == "-0.00" {
		return "0.00"
	}
	return s
}
