// Package viz picks a chart archetype for a query result. It never renders.
package viz

import (
	"fmt"
	"strings"
)

type VizType string

const (
	SingleValue   VizType = "single_value"
	TimeLine      VizType = "time_line"
	TimeMultiLine VizType = "time_multi_line"
	TimeBar       VizType = "time_bar"
	Bar           VizType = "bar"
	Pie           VizType = "pie"
	Table         VizType = "table"
)

var allTypes = []VizType{SingleValue, TimeLine, TimeMultiLine, TimeBar, Bar, Pie, Table}

// ParseVizType accepts a known type name. Empty and "auto" mean no
// preference.
func ParseVizType(raw string) (VizType, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" || name == "auto" {
		return "", nil
	}
	for _, t := range allTypes {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown visualization type %q", raw)
}

type Role string

const (
	RoleTime     Role = "time"
	RoleCategory Role = "category"
	RoleNumeric  Role = "numeric"
)

type Column struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

type Shape struct {
	RowCount int      `json:"row_count"`
	Columns  []Column `json:"columns"`
}

func (s Shape) count(role Role) int {
	n := 0
	for _, c := range s.Columns {
		if c.Role == role {
			n++
		}
	}
	return n
}

func (s Shape) hasYearColumn() bool {
	for _, c := range s.Columns {
		if yearNames[strings.ToLower(c.Name)] {
			return true
		}
	}
	return false
}

// Choose applies the decision table in priority order; the first match
// wins. A non-empty preference always overrides it.
func Choose(shape Shape, preference VizType) VizType {
	if preference != "" {
		return preference
	}
	numeric := shape.count(RoleNumeric)
	timeCols := shape.count(RoleTime)
	categories := shape.count(RoleCategory)

	switch {
	case shape.RowCount == 0:
		return Table
	case shape.RowCount == 1 && numeric >= 1:
		return SingleValue
	case timeCols >= 1 && numeric >= 1 && shape.RowCount > 1:
		switch {
		case numeric > 2:
			return TimeBar
		case numeric > 1:
			return TimeMultiLine
		default:
			return TimeLine
		}
	case categories >= 1 && numeric >= 1:
		if shape.RowCount <= 8 {
			return Pie
		}
		return Bar
	case shape.RowCount > 10 && numeric >= 1:
		if shape.hasYearColumn() {
			return TimeBar
		}
		return Bar
	default:
		return Table
	}
}
