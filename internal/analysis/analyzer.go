package analysis

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Insight texts used when no model call is made.
const (
	LowExposureText = "Low exposure, no insight"
	DisabledText    = "AI analysis disabled for this run."
)

// Options are the per-run switches chosen by the caller.
type Options struct {
	UseLLM                     bool `json:"use_llm"`
	FilterMetricsWithoutLimits bool `json:"filter_metrics_without_limits"`
	AdaptiveScaling            bool `json:"adaptive_scaling"`
	// Priority overrides DefaultPriorityMetrics when non-nil.
	Priority []string `json:"priority,omitempty"`
}

// DefaultOptions mirrors the dashboard defaults.
func DefaultOptions() Options {
	return Options{UseLLM: true, AdaptiveScaling: true}
}

// MetricAnalysis is the full result for one metric. Series fields are kept
// for charting and exports and are not serialised.
type MetricAnalysis struct {
	Metric       string        `json:"metric"`
	Stats        StatSummary   `json:"stats"`
	Outliers     OutlierSet    `json:"outliers"`
	OutlierDates []string      `json:"outlier_dates"`
	Breaches     []Breach      `json:"breaches"`
	Insight      *string       `json:"insight"`
	Scale        *ScaleContext `json:"scale_context"`
	HasLimits    bool          `json:"has_limits"`
	LowExposure  bool          `json:"low_exposure"`

	Dates    []time.Time `json:"-"`
	Values   []float64   `json:"-"`
	Display  []float64   `json:"-"` // interpolated for charts, nil when Values has no gaps
	MaxLimit []float64   `json:"-"` // forward-filled; nil when absent
	MinLimit []float64   `json:"-"`
}

// InsightFailed reports whether the insight text is a failure message.
func (m *MetricAnalysis) InsightFailed() bool {
	return m.Insight != nil && strings.HasPrefix(*m.Insight, FailurePrefix)
}

// Adaptive reports whether the chart for this metric zooms to the data.
func (m *MetricAnalysis) Adaptive() bool {
	return m.Scale != nil && m.Scale.NeedsAdaptiveScaling
}

// FailurePrefix starts every commentary text that is really an error
// message. Success and failure are told apart by this prefix alone.
const FailurePrefix = "Error generating"

// GroupResult holds the analyses of one table (single mode) or one node.
type GroupResult struct {
	Name             string           `json:"name"`
	Rows             int              `json:"rows"`
	Metrics          []MetricAnalysis `json:"metrics"`
	PortfolioSummary *string          `json:"portfolio_summary"`
	FilteredOut      int              `json:"filtered_out"`
}

// Mode is single or batch.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeBatch  Mode = "batch"
)

// RunResult is everything produced by one analysis run.
type RunResult struct {
	Mode        Mode          `json:"mode"`
	Source      string        `json:"source"`
	GeneratedAt time.Time     `json:"generated_at"`
	UseLLM      bool          `json:"use_llm"`
	NodeColumn  string        `json:"node_column,omitempty"`
	Groups      []GroupResult `json:"groups"`
}

// Group returns the group called name.
func (r *RunResult) Group(name string) (*GroupResult, bool) {
	for i := range r.Groups {
		if r.Groups[i].Name == name {
			return &r.Groups[i], true
		}
	}
	return nil, false
}

// CommentItem is one metric awaiting commentary with its chart snapshot.
type CommentItem struct {
	Analysis *MetricAnalysis
	ImagePNG []byte
}

// Commentator produces natural-language commentary. Comment returns one
// text per item in item order; failures are returned as text starting with
// FailurePrefix rather than as errors.
type Commentator interface {
	Comment(ctx context.Context, items []CommentItem) []string
	Summarize(ctx context.Context, analyses []MetricAnalysis) string
}

// Snapshotter renders a chart image for a metric.
type Snapshotter interface {
	Snapshot(m *MetricAnalysis) ([]byte, error)
}

// Analyzer runs the analysis pipeline over a loaded table.
type Analyzer struct {
	log         zerolog.Logger
	commentator Commentator
	snapshots   Snapshotter
}

// NewAnalyzer returns an Analyzer. commentator may be nil when model calls
// are never wanted; snapshots may be nil to send prompts without images.
func NewAnalyzer(log zerolog.Logger, commentator Commentator, snapshots Snapshotter) *Analyzer {
	return &Analyzer{log: log, commentator: commentator, snapshots: snapshots}
}

// Run analyses t. When t carries a node column each node is analysed as an
// independent group, in lexicographic order.
func (a *Analyzer) Run(ctx context.Context, t *Table, opt Options) (*RunResult, error) {
	if opt.UseLLM && a.commentator == nil {
		a.log.Warn().Msg("no AI provider configured; disabling insights")
		opt.UseLLM = false
	}
	res := &RunResult{Mode: ModeSingle, Source: t.Name, GeneratedAt: time.Now(), UseLLM: opt.UseLLM}
	a.log.Info().Int("rows", t.Len()).Int("columns", len(t.cols)+1).Str("source", t.Name).Msg("data loaded")

	col, batch := DetectNodeColumn(t)
	if !batch {
		g, err := a.analyzeGroup(ctx, "", t, opt)
		if err != nil {
			return nil, err
		}
		res.Groups = append(res.Groups, g)
		return res, nil
	}

	res.Mode = ModeBatch
	res.NodeColumn = col
	nodes := SplitByNode(t, col)
	a.log.Info().Str("column", col).Int("nodes", len(nodes)).Msg("node column detected, batch mode")
	for i, n := range nodes {
		a.log.Info().Str("node", n.Name).Int("index", i+1).Int("total", len(nodes)).Msg("processing node")
		g, err := a.analyzeGroup(ctx, n.Name, n.Table, opt)
		if err != nil {
			return nil, err
		}
		res.Groups = append(res.Groups, g)
	}
	return res, nil
}

func (a *Analyzer) analyzeGroup(ctx context.Context, name string, t *Table, opt Options) (GroupResult, error) {
	log := a.log.With().Str("group", name).Logger()
	priority := opt.Priority
	if priority == nil {
		priority = DefaultPriorityMetrics
	}
	metrics := OrganizeMetrics(t.Columns(), priority)
	log.Info().Int("metrics", len(metrics)).Msg("organized metrics")

	g := GroupResult{Name: name, Rows: t.Len()}
	if opt.FilterMetricsWithoutLimits {
		kept := metrics[:0:0]
		for _, m := range metrics {
			if HasMeaningfulLimits(t, m) {
				kept = append(kept, m)
			}
		}
		g.FilteredOut = len(metrics) - len(kept)
		if g.FilteredOut > 0 {
			log.Info().Int("filtered_out", g.FilteredOut).Msg("filtered out metrics without limits")
		}
		metrics = kept
	}
	if len(metrics) == 0 {
		log.Warn().Msg("no metrics available after applying limit filter")
		return g, nil
	}

	var pending []CommentItem
	var pendingIdx []int
	g.Metrics = make([]MetricAnalysis, 0, len(metrics))
	for i, m := range metrics {
		if err := ctx.Err(); err != nil {
			return g, err
		}
		log.Info().Str("metric", m).Int("index", i+1).Int("total", len(metrics)).Msg("processing metric")
		ma := analyzeMetric(t, m, opt.AdaptiveScaling)
		if n := t.Unparsed(m); n > 0 {
			log.Warn().Str("metric", m).Int("cells", n).Msg("non-numeric cells treated as missing")
		}

		switch {
		case !opt.UseLLM:
			text := DisabledText
			ma.Insight = &text
		case ma.LowExposure:
			_, ratio := LowExposure(ma.Values)
			log.Info().Str("metric", m).Float64("zero_ratio", ratio).Msg("skipping AI analysis due to low exposure")
			text := LowExposureText
			ma.Insight = &text
		default:
			pendingIdx = append(pendingIdx, len(g.Metrics))
		}
		g.Metrics = append(g.Metrics, ma)
	}

	if len(pendingIdx) > 0 {
		for _, idx := range pendingIdx {
			item := CommentItem{Analysis: &g.Metrics[idx]}
			if a.snapshots != nil {
				png, err := a.snapshots.Snapshot(&g.Metrics[idx])
				if err != nil {
					log.Warn().Err(err).Str("metric", g.Metrics[idx].Metric).Msg("chart snapshot failed")
				}
				item.ImagePNG = png
			}
			pending = append(pending, item)
		}
		texts := a.commentator.Comment(ctx, pending)
		log.Info().Int("responses", len(texts)).Msg("received AI insight responses")
		for i, idx := range pendingIdx {
			if i >= len(texts) {
				break
			}
			text := texts[i]
			g.Metrics[idx].Insight = &text
			if strings.HasPrefix(text, FailurePrefix) {
				log.Error().Str("metric", g.Metrics[idx].Metric).Msg("AI insight generation failed")
			} else {
				log.Info().Str("metric", g.Metrics[idx].Metric).Msg("AI insight generation succeeded")
			}
		}
	}

	if opt.UseLLM && len(g.Metrics) > 1 {
		summary := a.commentator.Summarize(ctx, g.Metrics)
		if strings.HasPrefix(summary, FailurePrefix) {
			log.Error().Msg("portfolio summary generation failed")
		} else {
			log.Info().Msg("portfolio summary generation succeeded")
		}
		g.PortfolioSummary = &summary
	}
	return g, nil
}

// analyzeMetric computes everything that does not need a model call.
func analyzeMetric(t *Table, metric string, adaptive bool) MetricAnalysis {
	values, _ := t.Numeric(metric)
	var maxLim, minLim []float64
	if s, ok := t.Numeric(metric + LimitMaxSuffix); ok {
		maxLim = ForwardFill(s)
	}
	if s, ok := t.Numeric(metric + LimitMinSuffix); ok {
		minLim = ForwardFill(s)
	}

	stats, outliers := CalculateStatistics(values, t.Dates)
	ma := MetricAnalysis{
		Metric:       metric,
		Stats:        stats,
		Outliers:     outliers,
		OutlierDates: outliers.Dates(),
		Breaches:     CheckLimitBreaches(t.Dates, values, maxLim, minLim),
		HasLimits:    maxLim != nil || minLim != nil,
		Dates:        t.Dates,
		Values:       values,
		MaxLimit:     maxLim,
		MinLimit:     minLim,
	}
	ma.LowExposure, _ = LowExposure(values)
	if adaptive {
		sc := CalculateScaleContext(values, t.Dates, maxLim, minLim)
		if sc.NeedsAdaptiveScaling {
			ma.Scale = &sc
		}
	}
	if HasGaps(values) {
		ma.Display = InterpolateForDisplay(t.Dates, values)
	}
	return ma
}

// MarshalJSON writes NaN statistics as null.
func (s StatSummary) MarshalJSON() ([]byte, error) {
	f := func(v float64) *float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	}
	return json.Marshal(struct {
		Mean   *float64 `json:"mean"`
		Median *float64 `json:"median"`
		Std    *float64 `json:"std"`
		Min    *float64 `json:"min"`
		Max    *float64 `json:"max"`
		Count  int      `json:"count"`
	}{f(s.Mean), f(s.Median), f(s.Std), f(s.Min), f(s.Max), s.Count})
}
