package insight

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/utils"
)

// Commentator implements analysis.Commentator on top of a Dispatcher.
type Commentator struct {
	d   *Dispatcher
	log zerolog.Logger
}

var _ analysis.Commentator = (*Commentator)(nil)

// NewCommentator wraps d.
func NewCommentator(d *Dispatcher, log zerolog.Logger) *Commentator {
	return &Commentator{d: d, log: log}
}

// Comment builds one metric prompt per item and dispatches them as a batch.
// Results are matched back to items by request ID, so the returned texts line
// up with items.
func (c *Commentator) Comment(ctx context.Context, items []analysis.CommentItem) []string {
	reqs := make([]Request, len(items))
	for i, it := range items {
		a := it.Analysis
		text := MetricPrompt(a.Metric, a.Stats, a.Outliers, a.Breaches, a.HasLimits)
		c.log.Debug().Str("metric", a.Metric).Int("prompt_tokens", utils.CountTokens(text)).Int("image_bytes", len(it.ImagePNG)).Msg("built metric prompt")
		reqs[i] = NewRequest(a.Metric, Prompt{Text: text, ImagePNG: it.ImagePNG}, a)
	}
	byID := ByID(c.d.Process(ctx, reqs))
	out := make([]string, len(items))
	for i, req := range reqs {
		r, ok := byID[req.ID]
		if !ok {
			c.log.Error().Str("metric", req.Metric).Msg("no result for insight request")
			out[i] = failureText(fmt.Errorf("no result for %s", req.Metric))
			continue
		}
		out[i] = r.Text
	}
	return out
}

// Summarize requests the portfolio synthesis over all analyses.
func (c *Commentator) Summarize(ctx context.Context, analyses []analysis.MetricAnalysis) string {
	prompt := PortfolioPrompt(analyses)
	sections := make(map[string]string, len(analyses))
	for _, a := range analyses {
		if a.Insight != nil {
			sections[a.Metric] = *a.Insight
		}
	}
	ev := c.log.Debug().Int("prompt_tokens", utils.CountTokens(prompt))
	for name, n := range utils.TokenBreakdown(sections) {
		ev = ev.Int("insight_tokens."+name, n)
	}
	ev.Msg("built portfolio prompt")
	return c.d.InvokeText(ctx, prompt)
}
