package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// columnIndex maps schema column names to Row field indexes.
var columnIndex = func() map[string]int {
	rowType := reflect.TypeOf(Row{})
	index := make(map[string]int, rowType.NumField())
	for i := 0; i < rowType.NumField(); i++ {
		name, _, _ := strings.Cut(rowType.Field(i).Tag.Get("json"), ",")
		index[name] = i
	}
	return index
}()

// Columns returns the schema column names in Row field order.
func Columns() []string {
	rowType := reflect.TypeOf(Row{})
	names := make([]string, 0, rowType.NumField())
	for i := 0; i < rowType.NumField(); i++ {
		name, _, _ := strings.Cut(rowType.Field(i).Tag.Get("json"), ",")
		names = append(names, name)
	}
	return names
}

// ReadCSV decodes a ledger export. Columns are matched by header name;
// unknown columns are ignored and missing ones stay zero. Vuosi is required.
// A missing YearMonth is derived from Vuosi and Kk.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv input is empty")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	positions := make([]int, len(header))
	hasYear := false
	hasYearMonth := false
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		idx, ok := columnIndex[name]
		if !ok {
			positions[i] = -1
			continue
		}
		positions[i] = idx
		switch name {
		case "Vuosi":
			hasYear = true
		case "YearMonth":
			hasYearMonth = true
		}
	}
	if !hasYear {
		return nil, fmt.Errorf("csv header has no Vuosi column")
	}

	rows := make([]Row, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		var row Row
		value := reflect.ValueOf(&row).Elem()
		for i, raw := range record {
			if i >= len(positions) || positions[i] < 0 {
				continue
			}
			if err := setField(value.Field(positions[i]), strings.TrimSpace(raw), positions[i] == columnIndex["YearMonth"]); err != nil {
				return nil, fmt.Errorf("csv line %d column %q: %w", line, header[i], err)
			}
		}
		if row.Vuosi == 0 {
			return nil, fmt.Errorf("csv line %d: Vuosi is empty", line)
		}
		if !hasYearMonth && row.Kk >= 1 && row.Kk <= 12 {
			row.YearMonth = DaysSinceEpoch(time.Date(int(row.Vuosi), time.Month(row.Kk), 1, 0, 0, 0, 0, time.UTC))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func setField(field reflect.Value, raw string, date bool) error {
	if raw == "" {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int32:
		if date {
			day, err := parseMonth(raw)
			if err != nil {
				return err
			}
			field.SetInt(int64(day))
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := parseAmount(raw)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

func parseMonth(raw string) (int32, error) {
	for _, layout := range []string{"2006-01-02", "2006-01", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return DaysSinceEpoch(t), nil
		}
	}
	return 0, fmt.Errorf("invalid date %q", raw)
}

// parseAmount accepts plain decimals as well as Finnish formatting with a
// decimal comma and space separated thousands.
func parseAmount(raw string) (float64, error) {
	cleaned := strings.NewReplacer(" ", "", "\u00a0", "", "\u2212", "-").Replace(raw)
	if strings.Contains(cleaned, ",") && !strings.Contains(cleaned, ".") {
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	return f, nil
}
