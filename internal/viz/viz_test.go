package viz

import (
	"testing"
	"time"
)

func TestChooseDecisionTable(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		want  VizType
	}{
		{
			name:  "single numeric row",
			shape: Shape{RowCount: 1, Columns: []Column{{Name: "x", Role: RoleNumeric}}},
			want:  SingleValue,
		},
		{
			name: "time with three measures",
			shape: Shape{RowCount: 5, Columns: []Column{
				{Name: "year", Role: RoleTime},
				{Name: "budget", Role: RoleNumeric},
				{Name: "spending", Role: RoleNumeric},
				{Name: "extra", Role: RoleNumeric},
			}},
			want: TimeBar,
		},
		{
			name: "time with two measures",
			shape: Shape{RowCount: 4, Columns: []Column{
				{Name: "year", Role: RoleTime},
				{Name: "budget", Role: RoleNumeric},
				{Name: "spending", Role: RoleNumeric},
			}},
			want: TimeMultiLine,
		},
		{
			name:  "time with one measure",
			shape: Shape{RowCount: 4, Columns: []Column{{Name: "year", Role: RoleTime}, {Name: "budget", Role: RoleNumeric}}},
			want:  TimeLine,
		},
		{
			name:  "few categories",
			shape: Shape{RowCount: 8, Columns: []Column{{Name: "ministry", Role: RoleCategory}, {Name: "budget", Role: RoleNumeric}}},
			want:  Pie,
		},
		{
			name:  "many categories",
			shape: Shape{RowCount: 9, Columns: []Column{{Name: "ministry", Role: RoleCategory}, {Name: "budget", Role: RoleNumeric}}},
			want:  Bar,
		},
		{
			name:  "large numeric result",
			shape: Shape{RowCount: 11, Columns: []Column{{Name: "a", Role: RoleNumeric}, {Name: "b", Role: RoleNumeric}}},
			want:  Bar,
		},
		{
			name:  "large numeric result with year-like column",
			shape: Shape{RowCount: 11, Columns: []Column{{Name: "Vuosi", Role: RoleNumeric}, {Name: "b", Role: RoleNumeric}}},
			want:  TimeBar,
		},
		{
			name:  "small numeric result",
			shape: Shape{RowCount: 3, Columns: []Column{{Name: "a", Role: RoleNumeric}, {Name: "b", Role: RoleNumeric}}},
			want:  Table,
		},
		{
			name:  "single time row without measures",
			shape: Shape{RowCount: 1, Columns: []Column{{Name: "year", Role: RoleTime}}},
			want:  Table,
		},
		{
			name:  "empty result",
			shape: Shape{RowCount: 0, Columns: []Column{{Name: "ministry", Role: RoleCategory}, {Name: "budget", Role: RoleNumeric}}},
			want:  Table,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Choose(tt.shape, ""); got != tt.want {
				t.Fatalf("Choose() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChoosePreferenceOverrides(t *testing.T) {
	shape := Shape{RowCount: 1, Columns: []Column{{Name: "x", Role: RoleNumeric}}}
	if got := Choose(shape, Table); got != Table {
		t.Fatalf("Choose() = %q, want %q", got, Table)
	}
}

func TestParseVizType(t *testing.T) {
	if got, err := ParseVizType(" Pie "); err != nil || got != Pie {
		t.Fatalf("ParseVizType(Pie) = %q, %v", got, err)
	}
	if got, err := ParseVizType("auto"); err != nil || got != "" {
		t.Fatalf("ParseVizType(auto) = %q, %v", got, err)
	}
	if _, err := ParseVizType("radar"); err == nil {
		t.Fatal("ParseVizType(radar) expected error")
	}
}

func TestInferShape(t *testing.T) {
	columns := []string{"year", "Hallinnonala", "budget", "label", "updated", "empty"}
	rows := [][]any{
		{int32(2022), "Puolustusministeriö", 1.5e9, "x", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil},
		{int32(2023), "Puolustusministeriö", int64(2_000_000_000), "y", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), nil},
	}
	shape := InferShape(columns, rows)
	if shape.RowCount != 2 {
		t.Fatalf("RowCount = %d", shape.RowCount)
	}
	want := []Role{RoleTime, RoleCategory, RoleNumeric, RoleCategory, RoleTime, RoleCategory}
	for i, col := range shape.Columns {
		if col.Role != want[i] {
			t.Fatalf("column %q role = %q, want %q", col.Name, col.Role, want[i])
		}
	}
	if got := Choose(shape, ""); got != TimeLine {
		t.Fatalf("Choose(inferred) = %q, want %q", got, TimeLine)
	}
}

func TestSuggestTitle(t *testing.T) {
	columns := []string{"Vuosi", "ministry", "spending"}
	rows := [][]any{
		{int64(2020), "Defence", 1.0},
		{int64(2023), "Defence", 2.0},
	}
	if got := SuggestTitle("military budget over time", columns, rows); got != "Budget Analysis (2020-2023) - Defence" {
		t.Fatalf("SuggestTitle() = %q", got)
	}
	if got := SuggestTitle("how much was SPENDING", columns, rows[:1]); got != "Spending Analysis (2020) - Defence" {
		t.Fatalf("SuggestTitle() = %q", got)
	}
	if got := SuggestTitle("top accounts", []string{"account", "total"}, nil); got != "Top accounts" {
		t.Fatalf("SuggestTitle() = %q", got)
	}
}

func TestLabel(t *testing.T) {
	if got := Label("Nettokertymä"); got != "Net Amount" {
		t.Fatalf("Label() = %q", got)
	}
	if got := Label("utilization_percentage"); got != "Utilization Percentage" {
		t.Fatalf("Label() = %q", got)
	}
}
