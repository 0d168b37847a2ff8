package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/extraction"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/logging"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/server"
)

var (
	serveAddr        string
	serveDownloadDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web dashboard and JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.ListenAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		downloads := serveDownloadDir
		if downloads == "" {
			downloads = cfg.OutputDir
		}
		// The provider is always wired; each upload decides whether to use it.
		reg := newRegistry()
		p, err := newPipeline(cfg, true, reg)
		if err != nil {
			return err
		}
		log := logging.Component("server")
		srv := server.New(log, server.Config{
			Addr:     addr,
			Defaults: runOptionsFromConfig(cfg),
			Dependencies: server.Dependencies{
				Analyzer:  p.analyzer,
				Exporter:  p.exporter,
				Extractor: extraction.NewExtractor(downloads, logging.Component("extraction")),
				Registry:  reg,
			},
		})
		fmt.Fprintf(cmd.OutOrStdout(), "Dashboard: http://%s/\n", addr)
		return srv.Start(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default listen_addr, 127.0.0.1:8501)")
	serveCmd.Flags().StringVar(&serveDownloadDir, "download-dir", "", "where simulated extracts are stored (default output_dir)")
}
