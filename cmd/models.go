package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/ai"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/insight"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/logging"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the model catalog or check provider access",
	Example: `  riskmetrics models show
  riskmetrics models ping
  riskmetrics --provider ollama --model llava:latest models ping`,
}

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show known models, context sizes and pricing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog()
		keys := make([]string, 0, len(cat))
		for k := range cat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		list := make([]ai.ModelInfo, 0, len(keys))
		for _, k := range keys {
			list = append(list, cat[k])
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"providers": ai.Providers(),
			"current":   map[string]string{"provider": cfg.Provider, "model": cfg.Model},
			"models":    list,
		})
	},
}

var modelsPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send one short prompt through the configured provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		factory, err := insight.NewProviderFactory(insight.ProviderSettings{
			Provider:    cfg.Provider,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Runtime:     ai.RuntimeConfig{APIKey: cfg.APIKey, HTTPTimeout: cfg.HTTPTimeout(), Host: cfg.OllamaHost},
		}, logging.Component("provider"))
		if err != nil {
			return err
		}
		d := insight.NewDispatcher(factory, insight.Config{MaxAttempts: 1}, logging.Component("insight"), nil)
		text := d.InvokeText(cmd.Context(), "Reply with the single word OK.")
		fmt.Fprintf(cmd.OutOrStdout(), "%s/%s: %s\n", cfg.Provider, cfg.Model, text)
		if strings.HasPrefix(text, analysis.FailurePrefix) {
			return fmt.Errorf("provider check failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsPingCmd)
}
