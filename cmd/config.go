package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set riskmetrics configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "api_key: %s\n", cfg.MaskedKey())
		fmt.Fprintf(out, "provider: %s\n", cfg.Provider)
		fmt.Fprintf(out, "model: %s\n", cfg.Model)
		fmt.Fprintf(out, "temperature: %.3f\n", cfg.Temperature)
		fmt.Fprintf(out, "max_concurrency: %d\n", cfg.MaxConcurrency)
		fmt.Fprintf(out, "max_attempts: %d\n", cfg.MaxAttempts)
		fmt.Fprintf(out, "retry_delay_ms: %d\n", cfg.RetryDelayMs)
		if cfg.HTTPTimeoutSec > 0 {
			fmt.Fprintf(out, "http_timeout_sec: %d\n", cfg.HTTPTimeoutSec)
		}
		if cfg.Provider == "ollama" {
			fmt.Fprintf(out, "ollama_host: %s\n", cfg.OllamaHost)
		}
		fmt.Fprintf(out, "output_dir: %s\n", cfg.OutputDir)
		fmt.Fprintf(out, "log_dir: %s\n", cfg.LogDir)
		fmt.Fprintf(out, "listen_addr: %s\n", cfg.ListenAddr)
		fmt.Fprintf(out, "adaptive_scaling: %t\n", cfg.AdaptiveScaling)
		fmt.Fprintf(out, "use_llm: %t\n", cfg.UseLLM)
		fmt.Fprintf(out, "filter_metrics_without_limits: %t\n", cfg.FilterMetricsWithoutLimits)
		fmt.Fprintf(out, "priority_metrics: %s\n", strings.Join(cfg.PriorityMetrics, ","))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
