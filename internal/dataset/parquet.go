package dataset

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/parquet-go/parquet-go"
)

type EncodeResult struct {
	Data     []byte
	RowCount int64
	MinMonth int32
	MaxMonth int32
}

// EncodeParquet writes rows as a single parquet file.
func EncodeParquet(rows []Row) (EncodeResult, error) {
	if len(rows) == 0 {
		return EncodeResult{}, fmt.Errorf("rows are required")
	}

	result := EncodeResult{RowCount: int64(len(rows)), MinMonth: rows[0].YearMonth, MaxMonth: rows[0].YearMonth}
	for _, row := range rows[1:] {
		result.MinMonth = min(result.MinMonth, row.YearMonth)
		result.MaxMonth = max(result.MaxMonth, row.YearMonth)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Row](buf)
	if _, err := writer.Write(rows); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}
	result.Data = buf.Bytes()
	return result, nil
}

// PartitionByYear groups rows by Vuosi and returns the years in ascending
// order alongside the groups.
func PartitionByYear(rows []Row) ([]int, map[int][]Row) {
	groups := make(map[int][]Row)
	for _, row := range rows {
		year := int(row.Vuosi)
		groups[year] = append(groups[year], row)
	}
	years := make([]int, 0, len(groups))
	for year := range groups {
		years = append(years, year)
	}
	slices.Sort(years)
	return years, groups
}
