package viz

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var (
	yearNames = map[string]bool{"year": true, "vuosi": true}
	timeNames = map[string]bool{"year": true, "vuosi": true, "month": true, "kk": true, "quarter": true}

	categoryNames = map[string]bool{
		"hallinnonala":          true,
		"ministry":              true,
		"administrative_branch": true,
		"paaluokka":             true,
		"momentti":              true,
		"luku":                  true,
	}
	ministryNames = map[string]bool{"hallinnonala": true, "ministry": true, "administrative_branch": true}
)

// InferShape assigns a role to every result column. Well-known time and
// category names win; otherwise the first non-null value decides.
func InferShape(columns []string, rows [][]any) Shape {
	shape := Shape{RowCount: len(rows), Columns: make([]Column, 0, len(columns))}
	for i, name := range columns {
		shape.Columns = append(shape.Columns, Column{Name: name, Role: inferRole(name, i, rows)})
	}
	return shape
}

func inferRole(name string, idx int, rows [][]any) Role {
	lower := strings.ToLower(name)
	if timeNames[lower] {
		return RoleTime
	}
	if categoryNames[lower] {
		return RoleCategory
	}
	for _, row := range rows {
		if idx >= len(row) || row[idx] == nil {
			continue
		}
		switch row[idx].(type) {
		case time.Time:
			return RoleTime
		default:
			if _, ok := Number(row[idx]); ok {
				return RoleNumeric
			}
			return RoleCategory
		}
	}
	return RoleCategory
}

// Number converts a scanned result value to float64. Integer, float,
// HUGEINT and DECIMAL values convert; anything else does not.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case *big.Int:
		if n == nil {
			return 0, false
		}
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, true
	case interface{ Float64() float64 }:
		return n.Float64(), true
	default:
		return 0, false
	}
}

// SuggestTitle describes a result: the question focus, the covered time
// span and, for small results about a single ministry, its name.
func SuggestTitle(question string, columns []string, rows [][]any) string {
	var parts []string
	lower := strings.ToLower(question)
	switch {
	case strings.Contains(lower, "budget"):
		parts = append(parts, "Budget Analysis")
	case strings.Contains(lower, "spending"):
		parts = append(parts, "Spending Analysis")
	default:
		parts = append(parts, capitalize(strings.TrimSpace(question)))
	}

	if idx := firstColumn(columns, timeNames); idx >= 0 && len(rows) > 0 {
		if lo, hi, ok := valueRange(rows, idx); ok {
			if lo == hi {
				parts = append(parts, fmt.Sprintf("(%s)", formatNumber(lo)))
			} else {
				parts = append(parts, fmt.Sprintf("(%s-%s)", formatNumber(lo), formatNumber(hi)))
			}
		}
	}

	if idx := firstColumn(columns, ministryNames); idx >= 0 && len(rows) > 0 && len(rows) < 5 {
		distinct := map[string]struct{}{}
		var only string
		for _, row := range rows {
			if idx < len(row) && row[idx] != nil {
				only = fmt.Sprint(row[idx])
				distinct[only] = struct{}{}
			}
		}
		if len(distinct) == 1 {
			parts = append(parts, "- "+only)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

var labels = map[string]string{
	"vuosi":                     "Year",
	"kk":                        "Month",
	"quarter":                   "Quarter",
	"nettokertymä":              "Net Amount",
	"alkuperäinen_talousarvio":  "Original Budget",
	"voimassaoleva_talousarvio": "Current Budget",
	"hallinnonala":              "Administrative Branch",
	"spending":                  "Spending",
	"budget":                    "Budget",
	"ministry":                  "Ministry",
	"original_budget":           "Original Budget",
	"current_budget":            "Current Budget",
	"year":                      "Year",
	"month":                     "Month",
}

// Label returns an English display label for a result column.
func Label(column string) string {
	if label, ok := labels[strings.ToLower(column)]; ok {
		return label
	}
	words := strings.Fields(strings.ReplaceAll(column, "_", " "))
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func firstColumn(columns []string, names map[string]bool) int {
	for i, c := range columns {
		if names[strings.ToLower(c)] {
			return i
		}
	}
	return -1
}

func valueRange(rows [][]any, idx int) (float64, float64, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	found := false
	for _, row := range rows {
		if idx >= len(row) {
			continue
		}
		f, ok := Number(row[idx])
		if !ok {
			continue
		}
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
		found = true
	}
	return lo, hi, found
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
