package report

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
)

// Entry names inside export archives.
const (
	ReportFile     = "risk_analysis_report.html"
	NodeReportFile = "report.html"
	SummaryFile    = "summary.txt"
	WorkbookFile   = "statistics.xlsx"
	ChartsDir      = "charts"
)

// Exporter writes ZIP bundles. Snapshots renders chart PNGs; a nil
// Snapshots leaves the charts/ folder out.
type Exporter struct {
	Snapshots analysis.Snapshotter
	Log       zerolog.Logger
	Now       func() time.Time
}

func (e *Exporter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Export writes the archive matching run's mode.
func (e *Exporter) Export(w io.Writer, run *analysis.RunResult) error {
	if run.Mode == analysis.ModeBatch {
		return e.ExportBatchZIP(w, run)
	}
	return e.ExportZIP(w, run)
}

// ExportZIP writes risk_analysis_report.html, charts/<metric>_chart.png,
// summary.txt and statistics.xlsx for a single-mode run.
func (e *Exporter) ExportZIP(w io.Writer, run *analysis.RunResult) error {
	if len(run.Groups) == 0 {
		return fmt.Errorf("export: run has no results")
	}
	zw := zip.NewWriter(w)
	g := &run.Groups[0]
	if err := e.writeGroup(zw, "", ReportFile, g, run.Source, run.Source, "", run.UseLLM); err != nil {
		return err
	}
	if err := e.writeWorkbook(zw, run); err != nil {
		return err
	}
	return zw.Close()
}

// ExportBatchZIP writes one folder per node (sanitized name) holding
// report.html, charts/ and summary.txt, plus a shared statistics.xlsx.
func (e *Exporter) ExportBatchZIP(w io.Writer, run *analysis.RunResult) error {
	zw := zip.NewWriter(w)
	for i := range run.Groups {
		g := &run.Groups[i]
		dir := SanitizeNodeName(g.Name)
		title := fmt.Sprintf("%s - %s", run.Source, g.Name)
		if err := e.writeGroup(zw, dir, NodeReportFile, g, title, run.Source, g.Name, run.UseLLM); err != nil {
			return fmt.Errorf("node %s: %w", g.Name, err)
		}
	}
	if err := e.writeWorkbook(zw, run); err != nil {
		return err
	}
	return zw.Close()
}

func (e *Exporter) writeGroup(zw *zip.Writer, dir, reportName string, g *analysis.GroupResult, title, source, node string, useLLM bool) error {
	now := e.now()
	html, err := RenderHTML(g, title, useLLM, now)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := writeEntry(zw, path.Join(dir, reportName), html); err != nil {
		return err
	}
	if e.Snapshots != nil {
		for i := range g.Metrics {
			m := &g.Metrics[i]
			png, err := e.Snapshots.Snapshot(m)
			if err != nil {
				e.Log.Warn().Err(err).Str("metric", m.Metric).Msg("chart snapshot failed, skipping image")
				continue
			}
			if err := writeEntry(zw, path.Join(dir, ChartsDir, ChartFileName(m.Metric)), png); err != nil {
				return err
			}
		}
	}
	return writeEntry(zw, path.Join(dir, SummaryFile), []byte(SummaryText(g, source, node, useLLM, now)))
}

func (e *Exporter) writeWorkbook(zw *zip.Writer, run *analysis.RunResult) error {
	b, err := StatisticsWorkbook(run)
	if err != nil {
		return fmt.Errorf("statistics workbook: %w", err)
	}
	return writeEntry(zw, WorkbookFile, b)
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("zip %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("zip %s: %w", name, err)
	}
	return nil
}
