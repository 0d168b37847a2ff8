package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	anaOutputPath string
	anaJSONPath   string
	anaNoLLM      bool
	anaAdaptive   bool
	anaOnlyLimits bool
	anaPriority   []string
	anaDelimiter  string
	anaDecimal    string
	anaThousands  string
	anaSheetName  string
	anaQuiet      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a CSV/TSV/XLSX metric file and export a report bundle",
	Long: `Analyze computes statistics, outliers and limit breaches for every metric
column, asks the configured model for commentary, and writes a ZIP bundle with
the HTML report, chart snapshots, a text summary and a statistics workbook.

A StranaNodeName column switches to batch mode: every node is analyzed on its
own and gets its own folder in the bundle.`,
	Example: `  riskmetrics analyze data/risk.csv
  riskmetrics analyze data/risk.xlsx --sheet Metrics --no-llm --out report.zip
  riskmetrics analyze data/risk.csv --decimal comma --thousands . --json run.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loadOpt, err := parseLoadOptions(anaDelimiter, anaDecimal, anaThousands, anaSheetName)
		if err != nil {
			return err
		}
		opt := runOptionsFromConfig(cfg)
		f := cmd.Flags()
		if anaNoLLM {
			opt.UseLLM = false
		}
		if f.Changed("adaptive") {
			opt.AdaptiveScaling = anaAdaptive
		}
		if f.Changed("only-with-limits") {
			opt.FilterMetricsWithoutLimits = anaOnlyLimits
		}
		if len(anaPriority) > 0 {
			opt.Priority = anaPriority
		}

		p, err := newPipeline(cfg, opt.UseLLM, nil)
		if err != nil {
			return err
		}
		job := fileJob{Path: args[0], ZipPath: anaOutputPath, JSONPath: anaJSONPath}
		zipPath, run, err := p.analyzeFile(cmd.Context(), job, opt, loadOpt, cfg.OutputDir, cmd.OutOrStdout(), anaQuiet)
		if err != nil {
			return err
		}
		metrics := 0
		for _, g := range run.Groups {
			metrics += len(g.Metrics)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Analyzed %d metrics (%s mode) -> %s\n", metrics, run.Mode, zipPath)
		if anaJSONPath != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote results JSON: %s\n", anaJSONPath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "out", "o", "", "ZIP output path (default <output_dir>/<name>_risk_analysis_<ts>.zip)")
	analyzeCmd.Flags().StringVar(&anaJSONPath, "json", "", "also write the analysis results as JSON to this path")
	analyzeCmd.Flags().BoolVar(&anaNoLLM, "no-llm", false, "skip model commentary")
	analyzeCmd.Flags().BoolVar(&anaAdaptive, "adaptive", true, "zoom charts to the data when limits would flatten it")
	analyzeCmd.Flags().BoolVar(&anaOnlyLimits, "only-with-limits", false, "analyze only metrics with at least one non-zero limit")
	analyzeCmd.Flags().StringSliceVar(&anaPriority, "priority", nil, "metrics listed first, in order (default VaR,SVaR,STTHH)")
	analyzeCmd.Flags().StringVar(&anaDelimiter, "delimiter", "", "CSV delimiter: ',', ';' or 'tab' (default from extension)")
	analyzeCmd.Flags().StringVar(&anaDecimal, "decimal", "", "decimal separator: '.' or 'comma' (default auto)")
	analyzeCmd.Flags().StringVar(&anaThousands, "thousands", "", "thousands separator: ',', '.' or 'space'")
	analyzeCmd.Flags().StringVar(&anaSheetName, "sheet", "", "XLSX worksheet name (default first sheet)")
	analyzeCmd.Flags().BoolVarP(&anaQuiet, "quiet", "q", false, "do not print the text summary")
}
