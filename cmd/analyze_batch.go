package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var (
	abOutDir    string
	abNoLLM     bool
	abDelimiter string
	abDecimal   string
	abThousands string
	abSheetName string
	abKeepGoing bool
	abQuiet     bool
)

var analyzeBatchCmd = &cobra.Command{
	Use:   "analyze-batch <files...>",
	Short: "Analyze several metric files, one report bundle per file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := expandInputs(args)
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		loadOpt, err := parseLoadOptions(abDelimiter, abDecimal, abThousands, abSheetName)
		if err != nil {
			return err
		}
		opt := runOptionsFromConfig(cfg)
		if abNoLLM {
			opt.UseLLM = false
		}
		p, err := newPipeline(cfg, opt.UseLLM, nil)
		if err != nil {
			return err
		}
		outDir := abOutDir
		if outDir == "" {
			outDir = cfg.OutputDir
		}

		out := cmd.OutOrStdout()
		total := len(files)
		failed := 0
		for i, path := range files {
			if !abQuiet {
				fmt.Fprintf(out, "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			job := fileJob{Path: path, ZipPath: uniqueZipPath(outDir, path, abQuiet, out)}
			zipPath, _, err := p.analyzeFile(cmd.Context(), job, opt, loadOpt, outDir, io.Discard, true)
			if err != nil {
				if !abKeepGoing {
					return err
				}
				failed++
				fmt.Fprintf(out, "✗ %v\n", err)
				continue
			}
			if !abQuiet {
				fmt.Fprintf(out, "✓ %s\n", zipPath)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, total)
		}
		return nil
	},
}

// expandInputs resolves globs and literal paths, dropping duplicates, in
// sorted order.
func expandInputs(args []string) []string {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files
}

// uniqueZipPath returns <dir>/<stem>.zip, adding a __N suffix when two
// inputs share a base name or a bundle already exists.
func uniqueZipPath(dir, input string, quiet bool, out io.Writer) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	cand := filepath.Join(dir, stem+".zip")
	if _, err := os.Stat(cand); os.IsNotExist(err) {
		return cand
	}
	for idx := 2; ; idx++ {
		next := filepath.Join(dir, fmt.Sprintf("%s__%d.zip", stem, idx))
		if _, err := os.Stat(next); os.IsNotExist(err) {
			if !quiet {
				fmt.Fprintf(out, "⚠ %s exists, writing to %s to avoid overwrite.\n", filepath.Base(cand), filepath.Base(next))
			}
			return next
		}
	}
}

func init() {
	rootCmd.AddCommand(analyzeBatchCmd)
	analyzeBatchCmd.Flags().StringVar(&abOutDir, "out-dir", "", "directory for the bundles (default output_dir)")
	analyzeBatchCmd.Flags().BoolVar(&abNoLLM, "no-llm", false, "skip model commentary")
	analyzeBatchCmd.Flags().StringVar(&abDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab'")
	analyzeBatchCmd.Flags().StringVar(&abDecimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	analyzeBatchCmd.Flags().StringVar(&abThousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	analyzeBatchCmd.Flags().StringVar(&abSheetName, "sheet", "", "XLSX: sheet name to analyze")
	analyzeBatchCmd.Flags().BoolVar(&abKeepGoing, "keep-going", false, "continue with the next file after a failure")
	analyzeBatchCmd.Flags().BoolVar(&abQuiet, "quiet", false, "suppress progress and non-essential output")
}
