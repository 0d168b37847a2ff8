package cmd

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	cfgpkg "github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/config"
)

const metricsCSV = "ValueDate,VaR,VaR_limMaxValue,SVaR\n" +
	"2024-01-01,1,5,2\n" +
	"2024-01-02,2,5,3\n" +
	"2024-01-03,9,5,4\n"

// resetFlags puts every flag back to its default so invocations do not leak
// state into each other.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd executes the root command with args and returns stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// isolate points HOME, logs and outputs at temporary directories.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("RISKMETRICS_LOG_DIR", filepath.Join(home, "logs"))
	t.Setenv("RISKMETRICS_OUTPUT_DIR", filepath.Join(home, "Output"))
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open zip %s: %v", path, err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestAnalyzeWritesBundleAndJSON(t *testing.T) {
	home := isolate(t)
	in := filepath.Join(home, "risk.csv")
	writeFile(t, in, metricsCSV)
	zipPath := filepath.Join(home, "out", "bundle.zip")
	jsonPath := filepath.Join(home, "out", "run.json")

	out, err := runCmd(t, "analyze", in, "--no-llm", "--out", zipPath, "--json", jsonPath)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(out, "Risk Metrics Analysis Summary\nGenerated: ") || !strings.Contains(out, "Source File: risk.csv") ||
		!strings.Contains(out, "✓ Analyzed 2 metrics (single mode)") {
		t.Fatalf("stdout = %s", out)
	}
	names := strings.Join(zipEntries(t, zipPath), ",")
	for _, want := range []string{"risk_analysis_report.html", "summary.txt", "statistics.xlsx", "charts/VaR_chart.png"} {
		if !strings.Contains(names, want) {
			t.Fatalf("bundle missing %s: %s", want, names)
		}
	}
	b, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	if !strings.Contains(string(b), `"insight": "AI analysis disabled for this run."`) {
		t.Fatalf("json = %s", b)
	}
	if _, err := os.Stat(filepath.Join(home, "logs", "risk_metrics_analysis.log")); err != nil {
		t.Fatalf("log file: %v", err)
	}
}

func TestAnalyzeInputError(t *testing.T) {
	home := isolate(t)
	in := filepath.Join(home, "bad.csv")
	writeFile(t, in, "Date,VaR\n2024-01-01,1\n")
	if _, err := runCmd(t, "analyze", in, "--no-llm", "-q"); err == nil || !strings.Contains(err.Error(), "missing ValueDate column") {
		t.Fatalf("expected missing date column error, got %v", err)
	}
	if _, err := runCmd(t, "analyze", in, "--decimal", "x"); err == nil || !strings.Contains(err.Error(), "unsupported --decimal") {
		t.Fatalf("expected flag error, got %v", err)
	}
}

func TestAnalyzeBatchAvoidsOverwrite(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, "d1", "metrics.csv"), metricsCSV)
	writeFile(t, filepath.Join(home, "d2", "metrics.csv"), metricsCSV)
	outDir := filepath.Join(home, "bundles")

	out, err := runCmd(t, "analyze-batch", filepath.Join(home, "d*", "metrics.csv"), "--no-llm", "--out-dir", outDir)
	if err != nil {
		t.Fatalf("analyze-batch: %v", err)
	}
	if !strings.Contains(out, "[2/2] Processing metrics.csv") {
		t.Fatalf("stdout = %s", out)
	}
	for _, name := range []string{"metrics.zip", "metrics__2.zip"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	if _, err := runCmd(t, "analyze-batch", filepath.Join(home, "nothing*.csv")); err == nil {
		t.Fatalf("expected no-match error")
	}
}

func TestExtractCommand(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, "downloads")
	out, err := runCmd(t, "extract", "-u", "alice", "-p", "secret", "--perimeters", "EQ, FX", "--dir", dir)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(out, "✓ Extracted 4 rows") || !strings.Contains(out, `"password_checksum": "2bb80d53"`) {
		t.Fatalf("stdout = %s", out)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "api_extract_*.csv"))
	if len(matches) != 1 {
		t.Fatalf("extract files = %v", matches)
	}
	if _, err := runCmd(t, "extract", "-u", "alice", "--perimeters", "EQ", "--dir", dir); err == nil || err.Error() != "Password is required" {
		t.Fatalf("expected password error, got %v", err)
	}
}

func TestConfigSetAndShow(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "cfg", "config.yaml")
	if _, err := runCmd(t, "--config", path, "config", "set", "api_key", "abcdef123456"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	if _, err := runCmd(t, "--config", path, "config", "set", "max_concurrency", "2"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	out, err := runCmd(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "api_key: ********3456") || !strings.Contains(out, "max_concurrency: 2") {
		t.Fatalf("show = %s", out)
	}
	out, err = runCmd(t, "--config", path, "--max-concurrency", "7", "config", "show")
	if err != nil || !strings.Contains(out, "max_concurrency: 7") {
		t.Fatalf("flag override: %v %s", err, out)
	}
	if _, err := runCmd(t, "config", "set", "nope", "1"); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestGlobalFlagsReachSubcommands(t *testing.T) {
	home := isolate(t)
	logs := filepath.Join(home, "other-logs")
	out, err := runCmd(t, "config", "show", "--provider", "ollama", "--model", "llama3", "--log-dir", logs)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{"provider: ollama\n", "model: llama3\n", "ollama_host: ", "log_dir: " + logs + "\n"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show missing %q:\n%s", want, out)
		}
	}
	if fi, err := os.Stat(logs); err != nil || !fi.IsDir() {
		t.Fatalf("--log-dir not created: %v", err)
	}
}

func TestPipelineMetricsNeedRegistry(t *testing.T) {
	isolate(t)
	c, err := cfgpkg.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Without a registry nothing is registered, so repeated builds in one
	// process cannot collide.
	for i := 0; i < 2; i++ {
		if _, err := newPipeline(c, true, nil); err != nil {
			t.Fatalf("newPipeline #%d: %v", i, err)
		}
	}
	reg := newRegistry()
	if _, err := newPipeline(c, true, reg); err != nil {
		t.Fatalf("newPipeline with registry: %v", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "riskmetrics_llm_inflight" {
			found = true
		}
	}
	if !found {
		t.Fatalf("dispatcher gauge not registered")
	}
}

func TestParseLoadOptions(t *testing.T) {
	opt, err := parseLoadOptions("tab", "comma", "space", "Metrics")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opt.Delimiter != '\t' || opt.DecimalSeparator != ',' || opt.ThousandsSeparator != ' ' || opt.Sheet != "Metrics" {
		t.Fatalf("opt = %+v", opt)
	}
	for _, bad := range [][3]string{{"|", "", ""}, {"", "x", ""}, {"", "", "x"}} {
		if _, err := parseLoadOptions(bad[0], bad[1], bad[2], ""); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
}

func TestExpandInputsDedupesAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.csv"), "x")
	writeFile(t, filepath.Join(dir, "a.csv"), "x")
	got := expandInputs([]string{filepath.Join(dir, "*.csv"), filepath.Join(dir, "a.csv")})
	if len(got) != 2 || filepath.Base(got[0]) != "a.csv" || filepath.Base(got[1]) != "b.csv" {
		t.Fatalf("got %v", got)
	}
}
