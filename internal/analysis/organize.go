package analysis

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultPriorityMetrics are always listed first, in this order, when present.
var DefaultPriorityMetrics = []string{"VaR", "SVaR", "STTHH"}

var (
	basisPattern    = regexp.MustCompile(`(?i)^BasisSensiByCurrencyByPillar\[(\w+)\]\[(\w+)\]`)
	maturityPattern = regexp.MustCompile(`(?i)(\d+)([DWMY])`)
	limitSuffix     = regexp.MustCompile(`(?i)(_limmaxvalue|_limminvalue)$`)
)

var maturityDays = map[byte]int{'D': 1, 'W': 7, 'M': 30, 'Y': 365}

// MetricDescriptor is the parsed form of a metric column name.
type MetricDescriptor struct {
	Column        string
	BaseName      string
	Maturity      string
	HasMaturity   bool
	MaturityOrder int
}

// DescribeMetric parses column into its descriptor.
func DescribeMetric(column string) MetricDescriptor {
	base, mat, ok := ParseMetricName(column)
	return MetricDescriptor{
		Column:        column,
		BaseName:      base,
		Maturity:      mat,
		HasMaturity:   ok,
		MaturityOrder: MaturityOrder(mat),
	}
}

// ParseMetricName splits a column name into a base metric and a maturity
// code such as "1M" or "5Y". ok is false when the name carries no maturity.
// Limit suffixes are stripped first.
func ParseMetricName(column string) (base, maturity string, ok bool) {
	name := stripLimitSuffix(column)
	if m := basisPattern.FindStringSubmatch(name); m != nil {
		return "BasisSensi_" + m[1], m[2], true
	}
	loc := maturityPattern.FindStringSubmatchIndex(name)
	if loc == nil {
		return name, "", false
	}
	maturity = name[loc[2]:loc[3]] + strings.ToUpper(name[loc[4]:loc[5]])
	base = strings.Trim(name[:loc[0]]+name[loc[1]:], "_")
	if base == "" {
		base = name
	}
	return base, maturity, true
}

// MaturityOrder converts a maturity code to an approximate day count
// (months are 30 days, years 365). Unparseable or empty codes yield 0.
func MaturityOrder(maturity string) int {
	if maturity == "" {
		return 0
	}
	m := maturityPattern.FindStringSubmatch(maturity)
	if m == nil || !strings.HasPrefix(maturity, m[0]) {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n * maturityDays[strings.ToUpper(m[2])[0]]
}

func stripLimitSuffix(column string) string {
	return limitSuffix.ReplaceAllString(column, "")
}

// IsLimitColumn reports whether column is a _limMaxValue/_limMinValue companion.
func IsLimitColumn(column string) bool {
	return limitSuffix.MatchString(column)
}

// IsMetricColumn reports whether column holds metric values, i.e. it is not
// the date column, the node column or a limit column.
func IsMetricColumn(column string) bool {
	key := strings.ToLower(column)
	return key != ValueDateColumn && key != NodeColumn && !IsLimitColumn(column)
}

// OrganizeMetrics returns the metric columns in display order: priority
// metrics first (in priority order, matched case-insensitively against the
// full column name), then the rest sorted by base name, maturity presence,
// maturity days and finally the literal column name.
func OrganizeMetrics(columns, priority []string) []string {
	var metrics []string
	for _, c := range columns {
		if IsMetricColumn(c) {
			metrics = append(metrics, c)
		}
	}

	out := make([]string, 0, len(metrics))
	taken := make(map[int]bool, len(priority))
	for _, p := range priority {
		for i, c := range metrics {
			if !taken[i] && strings.EqualFold(c, p) {
				out = append(out, c)
				taken[i] = true
			}
		}
	}

	rest := make([]MetricDescriptor, 0, len(metrics)-len(out))
	for i, c := range metrics {
		if !taken[i] {
			rest = append(rest, DescribeMetric(c))
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		a, b := rest[i], rest[j]
		if la, lb := strings.ToLower(a.BaseName), strings.ToLower(b.BaseName); la != lb {
			return la < lb
		}
		if a.HasMaturity != b.HasMaturity {
			return !a.HasMaturity
		}
		if a.MaturityOrder != b.MaturityOrder {
			return a.MaturityOrder < b.MaturityOrder
		}
		return a.Column < b.Column
	})
	for _, d := range rest {
		out = append(out, d.Column)
	}
	return out
}
