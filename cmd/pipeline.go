package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/ai"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/chart"
	cfgpkg "github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/config"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/insight"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/logging"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/report"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/utils"
)

// pipeline is the analysis stack shared by analyze, analyze-batch and serve.
type pipeline struct {
	analyzer *analysis.Analyzer
	exporter *report.Exporter
}

// newRegistry returns the registry exposed on /metrics by serve.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newPipeline wires provider, dispatcher, chart renderer and exporter from
// c. Without model commentary no provider is built at all. Dispatcher metrics
// are registered with reg when it is non-nil.
func newPipeline(c *cfgpkg.Global, withLLM bool, reg prometheus.Registerer) (*pipeline, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	snapshots := chart.Renderer{Width: chart.SnapshotWidth, Height: chart.SnapshotHeight}

	var commentator analysis.Commentator
	if withLLM {
		factory, err := insight.NewProviderFactory(insight.ProviderSettings{
			Provider:    c.Provider,
			Model:       c.Model,
			Temperature: c.Temperature,
			Runtime: ai.RuntimeConfig{
				APIKey:      c.APIKey,
				HTTPTimeout: c.HTTPTimeout(),
				Host:        c.OllamaHost,
			},
		}, logging.Component("provider"))
		if err != nil {
			return nil, err
		}
		var metrics *insight.Metrics
		if reg != nil {
			metrics = insight.NewMetrics(reg)
		}
		d := insight.NewDispatcher(factory, insight.Config{
			MaxConcurrency: c.MaxConcurrency,
			MaxAttempts:    c.MaxAttempts,
			RetryDelay:     c.RetryDelay(),
		}, logging.Component("insight"), metrics)
		commentator = insight.NewCommentator(d, logging.Component("insight"))
	}

	return &pipeline{
		analyzer: analysis.NewAnalyzer(logging.Component("analysis"), commentator, snapshots),
		exporter: &report.Exporter{Snapshots: snapshots, Log: logging.Component("export")},
	}, nil
}

// runOptionsFromConfig returns the per-run defaults held in c.
func runOptionsFromConfig(c *cfgpkg.Global) analysis.Options {
	return analysis.Options{
		UseLLM:                     c.UseLLM,
		AdaptiveScaling:            c.AdaptiveScaling,
		FilterMetricsWithoutLimits: c.FilterMetricsWithoutLimits,
		Priority:                   c.PriorityMetrics,
	}
}

// parseLoadOptions maps the locale flags onto analysis.LoadOptions.
func parseLoadOptions(delimiter, decimal, thousands, sheet string) (analysis.LoadOptions, error) {
	var opt analysis.LoadOptions
	switch delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", delimiter)
	}
	switch strings.ToLower(strings.TrimSpace(decimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", decimal)
	}
	switch strings.ToLower(strings.TrimSpace(thousands)) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", thousands)
	}
	opt.Sheet = sheet
	return opt, nil
}

// fileJob describes one input file and where its outputs go.
type fileJob struct {
	Path     string
	ZipPath  string // empty means <output_dir>/<stem>_risk_analysis_<ts>.zip
	JSONPath string // empty skips the JSON dump
}

// analyzeFile loads, analyzes and exports one file. It returns the written
// ZIP path together with the run.
func (p *pipeline) analyzeFile(ctx context.Context, job fileJob, opt analysis.Options, loadOpt analysis.LoadOptions, outputDir string, stdout io.Writer, quiet bool) (string, *analysis.RunResult, error) {
	t, err := analysis.LoadFile(job.Path, loadOpt)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", job.Path, err)
	}
	run, err := p.analyzer.Run(ctx, t, opt)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", job.Path, err)
	}

	zipPath := job.ZipPath
	if zipPath == "" {
		stem := strings.TrimSuffix(filepath.Base(job.Path), filepath.Ext(job.Path))
		zipPath = filepath.Join(outputDir, utils.TimestampedName(stem+"_risk_analysis", "zip", run.GeneratedAt))
	}
	var buf bytes.Buffer
	if err := p.exporter.Export(&buf, run); err != nil {
		return "", nil, fmt.Errorf("export: %w", err)
	}
	if err := utils.SafeWriteFile(zipPath, buf.Bytes()); err != nil {
		return "", nil, err
	}
	if job.JSONPath != "" {
		b, err := utils.PrettyJSON(run)
		if err != nil {
			return "", nil, err
		}
		if err := utils.SafeWriteFile(job.JSONPath, b); err != nil {
			return "", nil, err
		}
	}
	l := logging.Component("export")
	l.Info().Str("zip", zipPath).Str("json", job.JSONPath).Msg("results exported")

	if !quiet {
		for i := range run.Groups {
			g := &run.Groups[i]
			node := ""
			if run.Mode == analysis.ModeBatch {
				node = g.Name
			}
			fmt.Fprintln(stdout, report.SummaryText(g, run.Source, node, run.UseLLM, run.GeneratedAt))
		}
	}
	return zipPath, run, nil
}
