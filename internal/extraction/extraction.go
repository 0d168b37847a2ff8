// Package extraction simulates pulling risk data from an upstream API. It
// validates the request, fabricates a deterministic dataset and stores it as
// a CSV in the download directory. No network call is made.
package extraction

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/utils"
)

// DateLayout is the wire format of request and row dates.
const DateLayout = "2006-01-02"

// DefaultPerimeter is used when a dataset is built without perimeters.
const DefaultPerimeter = "GLOBAL"

var csvHeader = []string{"ValueDate", "Perimeter", "Metric", "Value", "RequestedBy"}

// Request is an extraction request. Dates are optional but must be given
// together.
type Request struct {
	Username   string   `json:"username" validate:"required"`
	Password   string   `json:"password" validate:"required"`
	Perimeters []string `json:"perimeters" validate:"min=1,dive,required"`
	StartDate  string   `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate    string   `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Summary describes a completed extraction.
type Summary struct {
	Username         string   `json:"username"`
	Perimeters       []string `json:"perimeters"`
	RowCount         int      `json:"row_count"`
	DownloadPath     string   `json:"download_path"`
	PasswordChecksum string   `json:"password_checksum"`
	GeneratedAt      string   `json:"generated_at"`
	StartDate        *string  `json:"start_date"`
	EndDate          *string  `json:"end_date"`
}

// Result is the stored file and its summary.
type Result struct {
	Path    string  `json:"path"`
	Summary Summary `json:"summary"`
}

// Row is one line of the fabricated dataset.
type Row struct {
	ValueDate   string
	Perimeter   string
	Metric      string
	Value       decimal.Decimal
	RequestedBy string
}

// ValidationError reports an invalid request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ParsePerimeters splits a comma-separated list, dropping blanks.
func ParsePerimeters(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Extractor stores simulated extracts under Dir.
type Extractor struct {
	Dir      string
	Now      func() time.Time
	log      zerolog.Logger
	validate *validator.Validate
}

// NewExtractor returns an Extractor writing into dir.
func NewExtractor(dir string, log zerolog.Logger) *Extractor {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Extractor{Dir: dir, Now: time.Now, log: log, validate: v}
}

// Validate checks req and returns the parsed date range (nil when absent).
func (e *Extractor) Validate(req *Request) (start, end *time.Time, err error) {
	cleaned := req.Perimeters[:0:0]
	for _, p := range req.Perimeters {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	req.Perimeters = cleaned

	if err := e.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, nil, translate(verrs[0])
		}
		return nil, nil, err
	}
	if (req.StartDate == "") != (req.EndDate == "") {
		return nil, nil, &ValidationError{Field: "start_date", Message: "Both start_date and end_date must be provided together, or neither"}
	}
	if req.StartDate == "" {
		return nil, nil, nil
	}
	s, _ := time.Parse(DateLayout, req.StartDate)
	en, _ := time.Parse(DateLayout, req.EndDate)
	if s.After(en) {
		return nil, nil, &ValidationError{Field: "start_date", Message: "start_date must be before or equal to end_date"}
	}
	return &s, &en, nil
}

func translate(fe validator.FieldError) *ValidationError {
	msg := fmt.Sprintf("%s is invalid", fe.Field())
	switch fe.Field() {
	case "username":
		msg = "Username is required"
	case "password":
		msg = "Password is required"
	case "perimeters":
		msg = "At least one perimeter is required"
	case "start_date", "end_date":
		msg = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", fe.Field())
	}
	return &ValidationError{Field: fe.Field(), Message: msg}
}

// Extract validates req, builds the dataset and writes
// api_extract_<UTC timestamp>.csv into the download directory.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Result, error) {
	start, end, err := e.Validate(&req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := e.Now().UTC()
	rows := BuildRows(req.Username, req.Perimeters, start, end, now)
	data, err := EncodeCSV(rows)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(e.Dir); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	path := filepath.Join(e.Dir, utils.TimestampedName("api_extract", "csv", now))
	if err := utils.SafeWriteFile(path, data); err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(req.Password))
	res := &Result{Path: path, Summary: Summary{
		Username:         req.Username,
		Perimeters:       req.Perimeters,
		RowCount:         len(rows),
		DownloadPath:     path,
		PasswordChecksum: hex.EncodeToString(sum[:])[:8],
		GeneratedAt:      now.Format("2006-01-02T15:04:05.000000"),
	}}
	if start != nil {
		s, en := start.Format(DateLayout), end.Format(DateLayout)
		res.Summary.StartDate, res.Summary.EndDate = &s, &en
	}
	e.log.Info().Str("path", path).Str("user", req.Username).Strs("perimeters", req.Perimeters).
		Str("start_date", req.StartDate).Str("end_date", req.EndDate).Msg("proxy API extraction stored")
	return res, nil
}

var (
	varBase  = decimal.RequireFromString("0.08")
	varStep  = decimal.RequireFromString("0.01")
	svarBase = decimal.RequireFromString("0.11")
	svarStep = decimal.RequireFromString("0.012")
)

// BuildRows fabricates the dataset. Without a date range each perimeter i
// gets one day, today minus i days, with values indexed by i. With a range
// every day carries every perimeter and values are indexed by day.
func BuildRows(user string, perimeters []string, start, end *time.Time, today time.Time) []Row {
	if len(perimeters) == 0 {
		perimeters = []string{DefaultPerimeter}
	}
	var rows []Row
	add := func(date time.Time, perimeter string, idx int64) {
		d := date.Format(DateLayout)
		i := decimal.NewFromInt(idx)
		rows = append(rows,
			Row{ValueDate: d, Perimeter: perimeter, Metric: "VaR", Value: varBase.Add(varStep.Mul(i)).Round(4), RequestedBy: user},
			Row{ValueDate: d, Perimeter: perimeter, Metric: "SVaR", Value: svarBase.Add(svarStep.Mul(i)).Round(4), RequestedBy: user},
		)
	}
	if start == nil || end == nil {
		base := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		for i, p := range perimeters {
			add(base.AddDate(0, 0, -i), p, int64(i))
		}
		return rows
	}
	var idx int64
	for d := *start; !d.After(*end); d = d.AddDate(0, 0, 1) {
		for _, p := range perimeters {
			add(d, p, idx)
		}
		idx++
	}
	return rows
}

// EncodeCSV renders rows with a header line.
func EncodeCSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.ValueDate, r.Perimeter, r.Metric, r.Value.String(), r.RequestedBy}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
