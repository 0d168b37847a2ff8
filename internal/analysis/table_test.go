package analysis

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestLoadCSVNormalisesColumns(t *testing.T) {
	csv := strings.Join([]string{
		"valueDate,VaR,VAR_limMaxValue,IRsensi1M",
		"2024-01-01,0.08,0.2,1",
		"2024-01-02,0.09,,",
		"2024-01-03,n/a,0.3,3",
	}, "\n")
	tbl, err := LoadCSV(strings.NewReader(csv), LoadOptions{})
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if tbl.Len() != 3 {
		t.Fatalf("rows = %d, want 3", tbl.Len())
	}
	cols := tbl.Columns()
	if len(cols) != 3 || cols[0] != "VaR" || cols[1] != "VAR_limMaxValue" {
		t.Fatalf("columns = %v", cols)
	}
	if !tbl.HasColumn("var_LIMMAXVALUE") {
		t.Fatalf("case-insensitive lookup failed")
	}
	v, _ := tbl.Numeric("var")
	if v[0] != 0.08 || v[1] != 0.09 || !math.IsNaN(v[2]) {
		t.Fatalf("VaR series = %v", v)
	}
	lim, _ := tbl.Numeric("VaR_limMaxValue")
	if !math.IsNaN(lim[1]) || lim[2] != 0.3 {
		t.Fatalf("limit series = %v", lim)
	}
	if got := tbl.Dates[2].Format("2006-01-02"); got != "2024-01-03" {
		t.Fatalf("date[2] = %s", got)
	}
}

func TestLoadCSVInputErrors(t *testing.T) {
	_, err := LoadCSV(strings.NewReader("Date,VaR\n2024-01-01,1\n"), LoadOptions{})
	if !errors.Is(err, ErrMissingDateColumn) || !IsInputError(err) {
		t.Fatalf("missing date: err = %v", err)
	}
	_, err = LoadCSV(strings.NewReader("ValueDate,VaR\n2024-01-01,1\nnot-a-date,2\n"), LoadOptions{})
	if !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("invalid date: err = %v", err)
	}
	var ie *InputError
	if !errors.As(err, &ie) || ie.Row != 3 || ie.Value != "not-a-date" {
		t.Fatalf("input error detail = %+v", ie)
	}
}

func TestLoadCSVLocaleNumbers(t *testing.T) {
	csv := "ValueDate;Exposure\n01/15/2024;1.000,5\n01/16/2024;2,25\n"
	tbl, err := LoadCSV(strings.NewReader(csv), LoadOptions{Delimiter: ';'})
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	v, _ := tbl.Numeric("exposure")
	if v[0] != 1000.5 || v[1] != 2.25 {
		t.Fatalf("exposure = %v", v)
	}
	if tbl.Dates[0].Month() != 1 || tbl.Dates[0].Day() != 15 {
		t.Fatalf("month-first date parsed as %v", tbl.Dates[0])
	}
}

func TestLoadCSVCommaThousands(t *testing.T) {
	csv := "ValueDate,Exposure\n" +
		"2024-01-01,\"1,234\"\n" +
		"2024-01-02,\"1,234,567\"\n" +
		"2024-01-03,\"12,500.5\"\n" +
		"2024-01-04,\"-2,5\"\n" +
		"2024-01-05,\"1,2,3\"\n" +
		"2024-01-06,n/a\n"
	tbl, err := LoadCSV(strings.NewReader(csv), LoadOptions{})
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	v, _ := tbl.Numeric("exposure")
	want := []float64{1234, 1234567, 12500.5, -2.5}
	for i, w := range want {
		if v[i] != w {
			t.Fatalf("exposure[%d] = %v, want %v (all: %v)", i, v[i], w, v)
		}
	}
	if !math.IsNaN(v[4]) || !math.IsNaN(v[5]) {
		t.Fatalf("ambiguous and null cells should be missing: %v", v)
	}
	if n := tbl.Unparsed("Exposure"); n != 1 {
		t.Fatalf("unparsed = %d, want 1", n)
	}

	comma, err := LoadCSV(strings.NewReader("ValueDate;Exposure\n2024-01-01;1,234\n"), LoadOptions{Delimiter: ';', DecimalSeparator: ','})
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if v, _ := comma.Numeric("exposure"); v[0] != 1.234 {
		t.Fatalf("explicit decimal comma = %v", v)
	}
}

func TestSplitByNode(t *testing.T) {
	csv := strings.Join([]string{
		"ValueDate,stranaNodeName,VaR",
		"2024-01-01,EMEA,1",
		"2024-01-02,EMEA,2",
		"2024-01-03,APAC,3",
		"2024-01-04,,4",
	}, "\n")
	tbl, err := LoadCSV(strings.NewReader(csv), LoadOptions{})
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	col, ok := DetectNodeColumn(tbl)
	if !ok || col != "stranaNodeName" {
		t.Fatalf("DetectNodeColumn = %q, %v", col, ok)
	}
	groups := SplitByNode(tbl, col)
	if len(groups) != 2 || groups[0].Name != "APAC" || groups[1].Name != "EMEA" {
		t.Fatalf("groups = %+v", groups)
	}
	emea := groups[1].Table
	if emea.Len() != 2 || emea.HasColumn(NodeColumn) {
		t.Fatalf("EMEA table rows=%d cols=%v", emea.Len(), emea.Columns())
	}
	v, _ := emea.Numeric("VaR")
	if v[0] != 1 || v[1] != 2 {
		t.Fatalf("EMEA VaR = %v", v)
	}
}

func TestLoadFileXLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.xlsx")

	f := excelize.NewFile()
	f.SetSheetName("Sheet1", "Data")
	rows := [][]any{
		{"ValueDate", "VaR", "VaR_limMaxValue"},
		{"2024-03-01", 0.1, 0.5},
		{"2024-03-02", 0.2, nil},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Data", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}

	tbl, err := LoadFile(path, LoadOptions{})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if tbl.Name != "metrics.xlsx" || tbl.Len() != 2 {
		t.Fatalf("table name=%q rows=%d", tbl.Name, tbl.Len())
	}
	v, _ := tbl.Numeric("var")
	if v[1] != 0.2 {
		t.Fatalf("VaR = %v", v)
	}
	if _, err := LoadXLSX(path, LoadOptions{Sheet: "Missing"}); err == nil || !strings.Contains(err.Error(), "Available sheets: Data") {
		t.Fatalf("missing sheet err = %v", err)
	}
}

func TestSerialToDate(t *testing.T) {
	if got := serialToDate("45352"); got != "2024-03-01" {
		t.Fatalf("serialToDate(45352) = %q", got)
	}
	if got := serialToDate("20240301"); got != "20240301" {
		t.Fatalf("compact date rewritten: %q", got)
	}
	if got := serialToDate("2024-03-01"); got != "2024-03-01" {
		t.Fatalf("iso date rewritten: %q", got)
	}
}

func TestLoadFileTSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.tsv")
	if err := os.WriteFile(path, []byte("ValueDate\tVaR\n2024-01-01\t1.5\n"), 0o644); err != nil {
		t.Fatalf("write tsv: %v", err)
	}
	tbl, err := LoadFile(path, LoadOptions{})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	v, _ := tbl.Numeric("VaR")
	if len(v) != 1 || v[0] != 1.5 {
		t.Fatalf("VaR = %v", v)
	}
}
