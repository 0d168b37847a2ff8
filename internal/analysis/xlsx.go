package analysis

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadXLSX reads the selected worksheet of an .xlsx workbook. If opt.Sheet is
// empty the first sheet is used. Date cells stored as Excel serial numbers are
// converted to timestamps.
func LoadXLSX(path string, opt LoadOptions) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("open xlsx: workbook '%s' has no sheets", filepath.Base(path))
	}
	sheet := sheets[0]
	if opt.Sheet != "" {
		sheet = ""
		for _, s := range sheets {
			if strings.EqualFold(s, opt.Sheet) {
				sheet = s
				break
			}
		}
		if sheet == "" {
			return nil, fmt.Errorf("sheet '%s' not found in workbook '%s'.\nAvailable sheets: %s",
				opt.Sheet, filepath.Base(path), strings.Join(sheets, ", "))
		}
	}

	// Raw values keep date serials numeric so they can be converted below.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) > 0 {
		dateIdx := -1
		for i, h := range rows[0] {
			if strings.EqualFold(strings.TrimSpace(h), ValueDateColumn) {
				dateIdx = i
				break
			}
		}
		if dateIdx >= 0 {
			for _, r := range rows[1:] {
				if dateIdx < len(r) {
					r[dateIdx] = serialToDate(r[dateIdx])
				}
			}
		}
	}
	t, err := fromRecords(rows, opt)
	if err != nil {
		return nil, err
	}
	t.Name = filepath.Base(path)
	return t, nil
}

// serialToDate turns an Excel date serial into an ISO date string. Anything
// that is not a plausible serial is returned unchanged.
func serialToDate(v string) string {
	s := strings.TrimSpace(v)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 1 || f > 2958465 {
		return v
	}
	// Eight-digit integers are compact yyyymmdd dates, not serials.
	if len(s) == 8 && !strings.ContainsAny(s, ".eE") {
		return v
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return v
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}
