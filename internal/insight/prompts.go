package insight

import (
	"fmt"
	"math"
	"strings"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/utils"
)

// maxShownOutliers caps how many outlier values are quoted in a metric prompt.
const maxShownOutliers = 5

// maxInsightTokens bounds each individual insight embedded in the portfolio prompt.
const maxInsightTokens = 1200

// FormatBreach renders a breach the way it is shown to users and models,
// e.g. "Max limit breached 2 times on 2024-01-03, 2024-01-04".
func FormatBreach(b analysis.Breach) string {
	label := "Min"
	if b.Type == analysis.BreachMax {
		label = "Max"
	}
	return fmt.Sprintf("%s limit breached %d times on %s", label, b.Count, strings.Join(b.Dates, ", "))
}

// FormatBreaches joins breaches with "; ".
func FormatBreaches(bs []analysis.Breach) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = FormatBreach(b)
	}
	return strings.Join(parts, "; ")
}

// MetricPrompt builds the per-metric analyst prompt. Without limit columns the
// prompt says so, so the model does not read "no breaches" as compliance.
func MetricPrompt(metric string, stats analysis.StatSummary, outliers analysis.OutlierSet, breaches []analysis.Breach, hasLimits bool) string {
	var extra strings.Builder
	if len(outliers) > 0 {
		shown := outliers
		if len(shown) > maxShownOutliers {
			shown = shown[:maxShownOutliers]
		}
		vals := make([]string, len(shown))
		for i, o := range shown {
			vals[i] = fmt.Sprintf("%.4f", o.Value)
		}
		fmt.Fprintf(&extra, "\n\nOutliers (2 SD from mean, showing up to 5): %s", strings.Join(vals, ", "))
		if len(outliers) > maxShownOutliers {
			fmt.Fprintf(&extra, "\n(Total outliers: %d)", len(outliers))
		}
	}
	switch {
	case len(breaches) > 0:
		fmt.Fprintf(&extra, "\n\nLimit Breaches: %s", FormatBreaches(breaches))
	case !hasLimits:
		extra.WriteString("\n\nLimits: none configured for this metric")
	}

	return fmt.Sprintf(`
You are a senior quantitative risk analyst with deep expertise in market risk metrics and trading desk behavior.
Analyze the %s risk metric chart with both statistical rigor and practical business insight.

STATISTICAL PROFILE:
- Mean: %.4f | Median: %.4f
- Std Deviation: %.4f | Coefficient of Variation: %s
- Range: [%.4f, %.4f] | Spread: %.4f
- Sample Size: %d observations%s

ANALYSIS FRAMEWORK:

1. VISUAL PATTERN RECOGNITION (2-3 sentences)
   - Describe the dominant trend (upward/downward/mean-reverting/volatile)
   - Note any regime changes, structural breaks, or phase transitions
   - Identify clustering patterns or periodicity

2. STATISTICAL SIGNIFICANCE (2-3 sentences)
   - Interpret volatility level (std dev relative to mean) and what it reveals about risk-taking behavior
   - Analyze the mean-median relationship (distribution skewness implications)
   - Assess outliers: are they isolated shocks or symptomatic of systemic issues?

3. BUSINESS CONTEXT & DESK BEHAVIOR (3-4 sentences)
   - What trading activities or market conditions likely drove the observed patterns?
   - Explain limit breaches (if any): Were they justified tactical positions or control failures?
   - Infer portfolio composition assumptions (directional bias, leverage, concentration)
   - Connect patterns to typical desk strategies (e.g., momentum trading, volatility harvesting, carry strategies)

4. RISK IMPLICATIONS & FORWARD-LOOKING ASSESSMENT (2-3 sentences)
   - Key risks this metric reveals about current portfolio positioning
   - Whether observed behavior aligns with risk appetite and mandate
   - Recommended monitoring focus or risk mitigants

DELIVERY REQUIREMENTS:
- Use domain-specific terminology (drawdowns, convexity, tail risk, Greeks, etc. as appropriate)
- Support interpretations with the statistical evidence provided
- Maintain objectivity while providing actionable insights
- Total length: 3-4 concise paragraphs (10-15 sentences maximum)
- Prioritize signal over noise. Focus on material observations only
`, metric, stats.Mean, stats.Median, stats.Std, coefficientOfVariation(stats),
		stats.Min, stats.Max, stats.Max-stats.Min, stats.Count, extra.String())
}

func coefficientOfVariation(s analysis.StatSummary) string {
	if s.Mean == 0 || math.IsNaN(s.Mean) || math.IsNaN(s.Std) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", s.Std/math.Abs(s.Mean)*100)
}

// PortfolioPrompt builds the cross-metric synthesis prompt. Each metric is
// rendered as a <risk_metric> block carrying its statistics, outlier count,
// breaches and the individual insight text.
func PortfolioPrompt(analyses []analysis.MetricAnalysis) string {
	blocks := make([]string, 0, len(analyses))
	for _, a := range analyses {
		var b strings.Builder
		s := a.Stats
		fmt.Fprintf(&b, `
  <risk_metric>
    <name>%s</name>
    <statistics>
      <mean>%.4f</mean>
      <median>%.4f</median>
      <std_deviation>%.4f</std_deviation>
      <min>%.4f</min>
      <max>%.4f</max>
      <range>%.4f</range>
      <data_points>%d</data_points>
    </statistics>`, a.Metric, s.Mean, s.Median, s.Std, s.Min, s.Max, s.Max-s.Min, s.Count)
		if len(a.Outliers) > 0 {
			fmt.Fprintf(&b, `
    <outliers>
      <count>%d</count>
    </outliers>`, len(a.Outliers))
		}
		if len(a.Breaches) > 0 {
			fmt.Fprintf(&b, `
    <limit_breaches>
      <breaches>%s</breaches>
    </limit_breaches>`, FormatBreaches(a.Breaches))
		}
		insight := ""
		if a.Insight != nil {
			insight = utils.TruncateToTokenLimit(*a.Insight, maxInsightTokens)
		}
		fmt.Fprintf(&b, `
    <individual_insights>
%s
    </individual_insights>
  </risk_metric>`, insight)
		blocks = append(blocks, b.String())
	}

	return fmt.Sprintf(`

You are the Chief Risk Officer conducting a comprehensive portfolio risk review. Your task is to synthesize individual risk metric analyses into a cohesive assessment of the desk's risk profile, trading behavior, and control environment.

<individual_metric_analyses>
%s
</individual_metric_analyses>

SYNTHESIS REQUIREMENTS:

Your analysis must move beyond summarizing individual metrics to provide integrated business intelligence. Apply the following analytical framework:

1. DESK RISK NARRATIVE (1 paragraph, 4-5 sentences)

   Construct a coherent story of desk activities during this period by connecting patterns across metrics:
   - What is the PRIMARY risk-taking strategy evidenced by the collective metric behavior?
   - Identify the desk's risk appetite posture: defensive, opportunistic, aggressive, or unstable
   - Highlight any TEMPORAL PATTERNS: Did risk increase/decrease over time? Any regime shifts?
   - Connect metric patterns to probable market conditions or trading decisions

2. CROSS-METRIC RISK INTELLIGENCE (1 paragraph, 4-5 sentences)

   Synthesize relationships and dependencies between metrics:
   - Identify CONFIRMING signals (metrics telling the same risk story)
   - Flag CONFLICTING signals (metrics showing contradictory patterns, this is critical)
   - Assess concentration vs. diversification: Are risks clustered or spread?
   - Determine if outliers/breaches occurred SIMULTANEOUSLY across metrics (systemic event) or independently
   - Calculate implied portfolio characteristics (e.g., directional bias, leverage, liquidity profile)

3. CONTROL ENVIRONMENT ASSESSMENT (1 paragraph, 3-4 sentences)

   Evaluate the risk management and control framework effectiveness:
   - Are limit breaches isolated incidents or evidence of systematic control failures?
   - Quality of risk-taking: calculated tactical positions vs. excessive/unmanaged exposures?
   - Assess whether observed volatility is WITHIN mandate expectations or problematic
   - Any evidence of "gaming" behavior (e.g., limit breaches at period-end, window dressing)?

4. MATERIAL RISK CONCERNS & ANOMALIES (Bullet list, 3-5 items)

   Flag specific issues requiring immediate escalation or investigation:
   - Prioritize by MATERIALITY and URGENCY, not just statistical significance
   - For each concern, state: What is it? Why does it matter? What's the potential impact?
   - Include "red flags" that may indicate deeper issues (e.g., concealed losses, rogue activity)
   - Note any MISSING expected patterns (sometimes what's absent is revealing)

5. FORWARD-LOOKING RISK POSTURE (1 paragraph, 3-4 sentences)

   Provide actionable intelligence for ongoing risk management:
   - Based on current patterns, what are the TOP 2-3 emerging risks?
   - Recommended monitoring intensity and focus areas
   - Suggested risk mitigants or position adjustments
   - Overall risk rating: GREEN (controlled) / AMBER (requires attention) / RED (critical concern)

CRITICAL GUIDELINES:

- SYNTHESIZE, don't summarize: Connect dots across metrics to reveal the bigger picture
- Apply BUSINESS LOGIC: Every observation must relate to trading strategy or risk management
- Be SPECIFIC: Reference actual metric names, statistics, and patterns from the data
- Prioritize MATERIALITY: Focus on what truly matters for risk decisions
- Maintain OBJECTIVITY: Support conclusions with evidence, avoid speculation
- Use PROFESSIONAL LANGUAGE: This is for senior management and risk committees

- Do NOT simply list each metric's findings sequentially
- Do NOT use generic risk management platitudes
- Do NOT ignore conflicting signals or anomalies
- Do NOT exceed the specified paragraph lengths

DELIVERABLE FORMAT:
- Section headers as specified above
- Total length: 4-5 paragraphs + 1 bullet list (approximately 400-500 words)
- Executive-ready: clear, concise, actionable
`, strings.Join(blocks, "\n"))
}
