package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/config"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/logging"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	logDir  string
	// Overrides for the matching config keys when set
	flagProvider       string
	flagModel          string
	flagMaxConcurrency int

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "riskmetrics",
	Short: "Risk metrics analysis with limit breaches, adaptive charts and AI commentary",
	Long: `riskmetrics analyzes time series of risk metrics (VaR, SVaR, sensitivities by
maturity) against their limits, renders charts and reports, and asks a language
model for per-metric commentary and a portfolio summary.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}
		return logging.Init(logging.Options{Debug: debug, LogDir: cfg.LogDir, Stderr: cmd.ErrOrStderr()})
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.riskmetrics/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for the rotating log file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "model provider: gemini, openrouter or ollama (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "model name (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagMaxConcurrency, "max-concurrency", 0, "parallel model calls (overrides config)")
}

// loadConfig reads the configuration and applies the global flags parsed for
// cmd on top of it.
func loadConfig(cmd *cobra.Command) error {
	cfgpkg.LoadDotEnv()
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg = c

	f := cmd.Flags()
	if f.Changed("log-dir") {
		cfg.LogDir = logDir
	}
	if f.Changed("provider") && flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if f.Changed("model") && flagModel != "" {
		cfg.Model = flagModel
	}
	if f.Changed("max-concurrency") && flagMaxConcurrency > 0 {
		cfg.MaxConcurrency = flagMaxConcurrency
	}
	return nil
}
