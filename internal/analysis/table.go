package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Well-known column names, already lower-cased.
const (
	ValueDateColumn = "valuedate"
	NodeColumn      = "strananodename"
	LimitMaxSuffix  = "_limmaxvalue"
	LimitMinSuffix  = "_limminvalue"
)

// LoadOptions controls how a metric file is read.
type LoadOptions struct {
	// Delimiter for CSV. If 0, picked from the file extension (',' or '\t').
	Delimiter rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// Sheet selects the XLSX worksheet by name; empty means the first sheet.
	Sheet string
}

// Table is an in-memory metric table. Column names are normalised to lower
// case exactly once, at load time; the original spelling is kept for display.
// Rows keep the order of the source file.
type Table struct {
	Name  string
	Dates []time.Time

	cols  []string // display names, source order, date column excluded
	index map[string]int
	nums  [][]float64 // NaN marks a missing value
	raw   [][]string
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Dates) }

// Columns returns the display names of all non-date columns in source order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.cols))
	copy(out, t.cols)
	return out
}

// HasColumn reports whether the table carries name (case-insensitive).
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[strings.ToLower(name)]
	return ok
}

// Numeric returns the numeric series for name (case-insensitive). Missing or
// unparseable cells are NaN.
func (t *Table) Numeric(name string) ([]float64, bool) {
	i, ok := t.index[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return t.nums[i], true
}

// Unparsed counts the non-empty cells of name that are not numbers and were
// therefore loaded as missing values.
func (t *Table) Unparsed(name string) int {
	i, ok := t.index[strings.ToLower(name)]
	if !ok {
		return 0
	}
	n := 0
	for r, v := range t.raw[i] {
		if v != "" && !isNullToken(v) && math.IsNaN(t.nums[i][r]) {
			n++
		}
	}
	return n
}

// Text returns the raw trimmed cell values for name (case-insensitive).
func (t *Table) Text(name string) ([]string, bool) {
	i, ok := t.index[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return t.raw[i], true
}

// subset builds a new table with the selected rows, dropping the named column.
func (t *Table) subset(rows []int, drop string) *Table {
	out := &Table{Name: t.Name, index: map[string]int{}}
	dropKey := strings.ToLower(drop)
	out.Dates = make([]time.Time, len(rows))
	for i, r := range rows {
		out.Dates[i] = t.Dates[r]
	}
	for ci, name := range t.cols {
		if strings.ToLower(name) == dropKey {
			continue
		}
		nums := make([]float64, len(rows))
		raw := make([]string, len(rows))
		for i, r := range rows {
			nums[i] = t.nums[ci][r]
			raw[i] = t.raw[ci][r]
		}
		out.index[strings.ToLower(name)] = len(out.cols)
		out.cols = append(out.cols, name)
		out.nums = append(out.nums, nums)
		out.raw = append(out.raw, raw)
	}
	return out
}

// LoadFile reads a CSV, TSV or XLSX metric file.
func LoadFile(path string, opt LoadOptions) (*Table, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return LoadXLSX(path, opt)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	if opt.Delimiter == 0 {
		opt.Delimiter = sniffDelimiter(path)
	}
	t, err := LoadCSV(f, opt)
	if err != nil {
		return nil, err
	}
	t.Name = filepath.Base(path)
	return t, nil
}

// LoadCSV reads a metric table from CSV content.
func LoadCSV(r io.Reader, opt LoadOptions) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = ','
	if opt.Delimiter != 0 {
		cr.Comma = opt.Delimiter
	}
	var records [][]string
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	return fromRecords(records, opt)
}

// fromRecords builds a table from a header row followed by data rows.
func fromRecords(records [][]string, opt LoadOptions) (*Table, error) {
	if len(records) == 0 {
		return nil, &InputError{Err: ErrMissingDateColumn}
	}
	header := records[0]
	dateIdx := -1
	t := &Table{index: map[string]int{}}
	colIdx := make([]int, 0, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		key := strings.ToLower(name)
		if key == ValueDateColumn {
			if dateIdx < 0 {
				dateIdx = i
			}
			continue
		}
		if name == "" {
			continue
		}
		if _, dup := t.index[key]; dup {
			// first occurrence wins, matching a case-insensitive lookup
			continue
		}
		t.index[key] = len(t.cols)
		t.cols = append(t.cols, name)
		colIdx = append(colIdx, i)
	}
	if dateIdx < 0 {
		return nil, &InputError{Err: ErrMissingDateColumn}
	}

	rows := records[1:]
	t.Dates = make([]time.Time, 0, len(rows))
	t.nums = make([][]float64, len(t.cols))
	t.raw = make([][]string, len(t.cols))
	for c := range t.cols {
		t.nums[c] = make([]float64, 0, len(rows))
		t.raw[c] = make([]string, 0, len(rows))
	}
	for ri, rec := range rows {
		if isBlankRecord(rec) {
			continue
		}
		cell := func(i int) string {
			if i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		d, ok := parseTimeMaybe(cell(dateIdx))
		if !ok {
			return nil, &InputError{Err: ErrInvalidDate, Row: ri + 2, Value: cell(dateIdx)}
		}
		t.Dates = append(t.Dates, d)
		for c, src := range colIdx {
			v := cell(src)
			t.raw[c] = append(t.raw[c], v)
			x, ok := parseNumeric(v, opt)
			if !ok {
				x = math.NaN()
			}
			t.nums[c] = append(t.nums[c], x)
		}
	}
	return t, nil
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// DetectNodeColumn returns the display name of the grouping column, if any.
func DetectNodeColumn(t *Table) (string, bool) {
	i, ok := t.index[NodeColumn]
	if !ok {
		return "", false
	}
	return t.cols[i], true
}

// NodeTable is one partition of a batch-mode table.
type NodeTable struct {
	Name  string
	Table *Table
}

// SplitByNode partitions t by the distinct non-empty values of column. Groups
// are sorted lexicographically and the grouping column is dropped from each.
func SplitByNode(t *Table, column string) []NodeTable {
	values, ok := t.Text(column)
	if !ok {
		return nil
	}
	rowsByNode := map[string][]int{}
	for i, v := range values {
		if v == "" {
			continue
		}
		rowsByNode[v] = append(rowsByNode[v], i)
	}
	names := make([]string, 0, len(rowsByNode))
	for k := range rowsByNode {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]NodeTable, 0, len(names))
	for _, n := range names {
		out = append(out, NodeTable{Name: n, Table: t.subset(rowsByNode[n], column)})
	}
	return out
}

func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	return ','
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05",
		"2006-01-02 15:04", "2006/01/02", "01/02/2006", "1/2/2006", "01-02-06", "1/2/06",
		"02.01.2006", "20060102", "1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isNullToken(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nan", "null", "none", "n/a", "na", "#n/a":
		return true
	}
	return false
}

// commaGrouped matches numbers whose commas only separate thousands, such as
// 1,234 or -12,500.5.
var commaGrouped = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d*)?$`)

func parseNumeric(s string, opt LoadOptions) (float64, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" || isNullToken(raw) {
		return 0, false
	}
	pct := strings.HasSuffix(raw, "%")
	raw = strings.TrimSuffix(raw, "%")
	raw = strings.ReplaceAll(raw, "\u00a0", " ")
	raw = strings.TrimSpace(raw)
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		if cpos >= 0 && dpos >= 0 {
			if cpos > dpos {
				dec = ','
				thou = '.'
			} else {
				dec = '.'
				thou = ','
			}
		} else if cpos >= 0 {
			switch {
			case commaGrouped.MatchString(raw):
				dec, thou = '.', ','
			case strings.Count(raw, ",") == 1:
				dec = ','
			default:
				return 0, false
			}
		} else {
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	if pct {
		f /= 100
	}
	return f, true
}
