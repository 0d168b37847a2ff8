package extraction

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var today = time.Date(2024, 3, 10, 14, 30, 5, 0, time.UTC)

func newTestExtractor(t *testing.T) *Extractor {
	e := NewExtractor(t.TempDir(), zerolog.Nop())
	e.Now = func() time.Time { return today }
	return e
}

func TestParsePerimeters(t *testing.T) {
	got := ParsePerimeters(" EQ , ,FX,  ")
	if strings.Join(got, "|") != "EQ|FX" {
		t.Fatalf("got %v", got)
	}
	if ParsePerimeters("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestValidateMessages(t *testing.T) {
	e := newTestExtractor(t)
	cases := []struct {
		req  Request
		want string
	}{
		{Request{Password: "p", Perimeters: []string{"EQ"}}, "Username is required"},
		{Request{Username: "u", Perimeters: []string{"EQ"}}, "Password is required"},
		{Request{Username: "u", Password: "p", Perimeters: []string{" "}}, "At least one perimeter is required"},
		{Request{Username: "u", Password: "p", Perimeters: []string{"EQ"}, StartDate: "2024-01-01"}, "Both start_date and end_date must be provided together, or neither"},
		{Request{Username: "u", Password: "p", Perimeters: []string{"EQ"}, StartDate: "2024-01-05", EndDate: "2024-01-01"}, "start_date must be before or equal to end_date"},
		{Request{Username: "u", Password: "p", Perimeters: []string{"EQ"}, StartDate: "01/05/2024", EndDate: "2024-01-06"}, "start_date must be a date in YYYY-MM-DD format"},
	}
	for i, c := range cases {
		_, err := e.Extract(context.Background(), c.req)
		if err == nil || err.Error() != c.want || !IsValidationError(err) {
			t.Fatalf("case %d: got %v, want %q", i, err, c.want)
		}
	}
}

func TestExtractWithoutDates(t *testing.T) {
	e := newTestExtractor(t)
	res, err := e.Extract(context.Background(), Request{Username: "alice", Password: "secret", Perimeters: []string{"EQ", "FX"}})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if filepath.Base(res.Path) != "api_extract_20240310_143005.csv" {
		t.Fatalf("path = %s", res.Path)
	}
	b, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "ValueDate,Perimeter,Metric,Value,RequestedBy\n" +
		"2024-03-10,EQ,VaR,0.08,alice\n" +
		"2024-03-10,EQ,SVaR,0.11,alice\n" +
		"2024-03-09,FX,VaR,0.09,alice\n" +
		"2024-03-09,FX,SVaR,0.122,alice\n"
	if string(b) != want {
		t.Fatalf("csv =\n%s", b)
	}
	s := res.Summary
	if s.RowCount != 4 || s.PasswordChecksum != "2bb80d53" || s.StartDate != nil {
		t.Fatalf("summary = %+v", s)
	}
}

func TestBuildRowsWithRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)
	rows := BuildRows("bob", []string{"EQ", "FX"}, &start, &end, today)
	if len(rows) != 3*2*2 {
		t.Fatalf("rows = %d", len(rows))
	}
	last := rows[len(rows)-1]
	if last.ValueDate != "2024-01-03" || last.Perimeter != "FX" || last.Metric != "SVaR" || last.Value.String() != "0.134" {
		t.Fatalf("last row = %+v", last)
	}
	// both perimeters on the same day share the day index
	if rows[0].Value.String() != rows[2].Value.String() {
		t.Fatalf("values differ within a day: %v vs %v", rows[0].Value, rows[2].Value)
	}
	again := BuildRows("bob", []string{"EQ", "FX"}, &start, &end, today)
	for i := range rows {
		if rows[i].ValueDate != again[i].ValueDate || !rows[i].Value.Equal(again[i].Value) {
			t.Fatalf("non-deterministic row %d", i)
		}
	}
}

func TestBuildRowsDefaultPerimeter(t *testing.T) {
	rows := BuildRows("u", nil, nil, nil, today)
	if len(rows) != 2 || rows[0].Perimeter != DefaultPerimeter {
		t.Fatalf("rows = %+v", rows)
	}
}
