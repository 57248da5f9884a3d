// Package analytics derives budget indicators from a query result: growth
// over the covered years, how spending splits across administrative
// branches and how much of the budget was executed. Each indicator is
// computed only when the result carries the columns it needs.
package analytics

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/budgetlens/budgetlens/internal/viz"
)

const (
	// SignificantChangePct marks a year-over-year change worth reporting.
	SignificantChangePct = 10.0
	// TopGroups is the size of the leading group used for concentration.
	TopGroups = 5

	overExecutionPct  = 100.0
	underExecutionPct = 80.0
)

var (
	yearNames  = map[string]bool{"vuosi": true, "year": true}
	groupNames = map[string]bool{"hallinnonala": true, "ministry": true, "administrative_branch": true}

	budgetMarkers   = []string{"talousarvio", "budget"}
	spendingMarkers = []string{"kertymä", "spending"}
)

type Report struct {
	Trend      *Trend     `json:"trend,omitempty"`
	Ministries *Breakdown `json:"ministries,omitempty"`
	Execution  *Execution `json:"execution,omitempty"`
}

type YearChange struct {
	Year      int     `json:"year"`
	ChangePct float64 `json:"change_pct"`
}

// Trend summarizes one measure summed per year. Percentages are nil when
// the data cannot support them, for example growth from a zero start.
type Trend struct {
	YearColumn         string       `json:"year_column"`
	ValueColumn        string       `json:"value_column"`
	StartYear          int          `json:"start_year"`
	EndYear            int          `json:"end_year"`
	CAGRPct            *float64     `json:"cagr_pct"`
	AverageGrowthPct   *float64     `json:"average_growth_pct"`
	TotalChangePct     *float64     `json:"total_change_pct"`
	VolatilityPct      *float64     `json:"volatility_pct"`
	YearOverYear       []YearChange `json:"year_over_year"`
	SignificantChanges []YearChange `json:"significant_changes"`
}

type GroupShare struct {
	Name     string  `json:"name"`
	Total    float64 `json:"total"`
	SharePct float64 `json:"share_pct"`
}

// Breakdown ranks branches by their summed measure, largest first.
type Breakdown struct {
	GroupColumn      string       `json:"group_column"`
	ValueColumn      string       `json:"value_column"`
	Total            float64      `json:"total"`
	Groups           []GroupShare `json:"groups"`
	Top              []GroupShare `json:"top"`
	ConcentrationPct *float64     `json:"concentration_pct"`
}

// Execution compares spending with budget row by row. Rows with a zero
// budget are left out of the per-row rates.
type Execution struct {
	BudgetColumn   string   `json:"budget_column"`
	SpendingColumn string   `json:"spending_column"`
	OverallRatePct *float64 `json:"overall_rate_pct"`
	AverageRatePct *float64 `json:"average_rate_pct"`
	EfficiencyPct  *float64 `json:"efficiency_pct"`
	OverExecuting  int      `json:"over_executing"`
	UnderExecuting int      `json:"under_executing"`
}

// Analyze returns nil when no indicator applies to the result.
func Analyze(columns []string, rows [][]any) *Report {
	if len(columns) == 0 || len(rows) == 0 {
		return nil
	}
	shape := viz.InferShape(columns, rows)
	numeric := make([]int, 0, len(columns))
	for i, c := range shape.Columns {
		if c.Role == viz.RoleNumeric {
			numeric = append(numeric, i)
		}
	}

	report := &Report{
		Trend:      trend(columns, rows, numeric),
		Ministries: breakdown(columns, rows, numeric),
		Execution:  execution(columns, rows, numeric),
	}
	if report.Trend == nil && report.Ministries == nil && report.Execution == nil {
		return nil
	}
	return report
}

func trend(columns []string, rows [][]any, numeric []int) *Trend {
	yearIdx := columnNamed(columns, yearNames)
	if yearIdx < 0 {
		return nil
	}
	valueIdx := -1
	for _, i := range numeric {
		if i != yearIdx && !isTimeName(columns[i]) {
			valueIdx = i
			break
		}
	}
	if valueIdx < 0 {
		return nil
	}

	totals := map[int]float64{}
	for _, row := range rows {
		year, ok := cell(row, yearIdx)
		if !ok || year != math.Trunc(year) {
			continue
		}
		value, ok := cell(row, valueIdx)
		if !ok {
			continue
		}
		totals[int(year)] += value
	}
	if len(totals) < 2 {
		return nil
	}
	years := make([]int, 0, len(totals))
	for year := range totals {
		years = append(years, year)
	}
	slices.Sort(years)

	first, last := years[0], years[len(years)-1]
	start, end := totals[first], totals[last]
	t := &Trend{
		YearColumn:         columns[yearIdx],
		ValueColumn:        columns[valueIdx],
		StartYear:          first,
		EndYear:            last,
		YearOverYear:       []YearChange{},
		SignificantChanges: []YearChange{},
	}

	changes := make([]float64, 0, len(years)-1)
	for i := 1; i < len(years); i++ {
		prev := totals[years[i-1]]
		if prev == 0 {
			continue
		}
		change := (totals[years[i]] - prev) / math.Abs(prev) * 100
		changes = append(changes, change)
		yoy := YearChange{Year: years[i], ChangePct: round2(change)}
		t.YearOverYear = append(t.YearOverYear, yoy)
		if math.Abs(change) > SignificantChangePct {
			t.SignificantChanges = append(t.SignificantChanges, yoy)
		}
	}

	if start > 0 && end >= 0 {
		cagr := (math.Pow(end/start, 1/float64(last-first)) - 1) * 100
		t.CAGRPct = pct(cagr)
		t.TotalChangePct = pct((end - start) / start * 100)
	}
	if len(changes) > 0 {
		t.AverageGrowthPct = pct(mean(changes))
	}
	if len(changes) > 1 {
		t.VolatilityPct = pct(sampleStdDev(changes))
	}
	return t
}

func breakdown(columns []string, rows [][]any, numeric []int) *Breakdown {
	groupIdx := columnNamed(columns, groupNames)
	if groupIdx < 0 {
		return nil
	}
	valueIdx := preferred(columns, numeric, spendingMarkers, groupIdx)
	if valueIdx < 0 {
		return nil
	}

	totals := map[string]float64{}
	for _, row := range rows {
		if groupIdx >= len(row) || row[groupIdx] == nil {
			continue
		}
		value, ok := cell(row, valueIdx)
		if !ok {
			continue
		}
		totals[fmt.Sprint(row[groupIdx])] += value
	}
	if len(totals) < 2 {
		return nil
	}

	b := &Breakdown{GroupColumn: columns[groupIdx], ValueColumn: columns[valueIdx]}
	for name, total := range totals {
		b.Groups = append(b.Groups, GroupShare{Name: name, Total: total})
		b.Total += total
	}
	slices.SortFunc(b.Groups, func(x, y GroupShare) int {
		if c := cmp.Compare(y.Total, x.Total); c != 0 {
			return c
		}
		return strings.Compare(x.Name, y.Name)
	})
	if b.Total != 0 {
		for i := range b.Groups {
			b.Groups[i].SharePct = round2(b.Groups[i].Total / b.Total * 100)
		}
	}
	b.Top = slices.Clone(b.Groups[:min(TopGroups, len(b.Groups))])
	if b.Total != 0 {
		topTotal := 0.0
		for _, g := range b.Top {
			topTotal += g.Total
		}
		b.ConcentrationPct = pct(topTotal / b.Total * 100)
	}
	return b
}

func execution(columns []string, rows [][]any, numeric []int) *Execution {
	budgetIdx := preferred(columns, numeric, budgetMarkers, -1)
	if budgetIdx < 0 || !hasMarker(columns[budgetIdx], budgetMarkers) {
		return nil
	}
	spendingIdx := preferred(columns, numeric, spendingMarkers, budgetIdx)
	if spendingIdx < 0 || !hasMarker(columns[spendingIdx], spendingMarkers) {
		return nil
	}

	e := &Execution{BudgetColumn: columns[budgetIdx], SpendingColumn: columns[spendingIdx]}
	var budgetSum, spendingSum float64
	rates := make([]float64, 0, len(rows))
	for _, row := range rows {
		budget, okBudget := cell(row, budgetIdx)
		spending, okSpending := cell(row, spendingIdx)
		if !okBudget || !okSpending {
			continue
		}
		budgetSum += budget
		spendingSum += spending
		if budget == 0 {
			continue
		}
		rate := spending / budget * 100
		rates = append(rates, rate)
		switch {
		case rate > overExecutionPct:
			e.OverExecuting++
		case rate < underExecutionPct:
			e.UnderExecuting++
		}
	}
	if budgetSum != 0 {
		e.OverallRatePct = pct(spendingSum / budgetSum * 100)
	}
	if len(rates) > 0 {
		e.AverageRatePct = pct(mean(rates))
		deviation := make([]float64, len(rates))
		for i, rate := range rates {
			deviation[i] = math.Abs(rate - 100)
		}
		e.EfficiencyPct = pct(100 - mean(deviation))
	}
	return e
}

// preferred returns the first numeric column carrying one of markers, or
// the first numeric column at all when none does. skip is never returned.
func preferred(columns []string, numeric []int, markers []string, skip int) int {
	fallback := -1
	for _, i := range numeric {
		if i == skip || isTimeName(columns[i]) {
			continue
		}
		if hasMarker(columns[i], markers) {
			return i
		}
		if fallback < 0 {
			fallback = i
		}
	}
	return fallback
}

func hasMarker(column string, markers []string) bool {
	lower := strings.ToLower(column)
	for _, marker := range markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func columnNamed(columns []string, names map[string]bool) int {
	for i, c := range columns {
		if names[strings.ToLower(c)] {
			return i
		}
	}
	return -1
}

func isTimeName(column string) bool {
	switch strings.ToLower(column) {
	case "vuosi", "year", "kk", "month", "quarter":
		return true
	}
	return false
}

func cell(row []any, idx int) (float64, bool) {
	if idx >= len(row) {
		return 0, false
	}
	v, ok := viz.Number(row[idx])
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sampleStdDev(values []float64) float64 {
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func pct(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := round2(v)
	return &r
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
