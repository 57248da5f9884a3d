package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._=-]{0,127}$`)

const SchemaObjectName = "schema.json"

// BuildYearPartitionPath lays out dataset files as
// <prefix>/vuosi=<year>/part-<sequence>.parquet.
func BuildYearPartitionPath(prefix string, year, sequence int) (string, error) {
	cleaned, err := CleanDatasetPrefix(prefix)
	if err != nil {
		return "", err
	}
	if year < 1900 || year > 2999 {
		return "", fmt.Errorf("year out of range: %d", year)
	}
	if sequence < 0 {
		return "", fmt.Errorf("sequence must be >= 0")
	}
	return path.Join(cleaned, fmt.Sprintf("vuosi=%04d", year), fmt.Sprintf("part-%05d.parquet", sequence)), nil
}

// BuildYearPartitionDir returns the directory holding the part files of one
// year.
func BuildYearPartitionDir(prefix string, year int) (string, error) {
	partPath, err := BuildYearPartitionPath(prefix, year, 0)
	if err != nil {
		return "", err
	}
	return path.Dir(partPath), nil
}

// BuildSchemaPath returns the key of the schema document for a dataset.
func BuildSchemaPath(prefix string) (string, error) {
	cleaned, err := CleanDatasetPrefix(prefix)
	if err != nil {
		return "", err
	}
	return path.Join(cleaned, SchemaObjectName), nil
}

// CleanDatasetPrefix validates every component of a slash separated prefix.
func CleanDatasetPrefix(prefix string) (string, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "", fmt.Errorf("dataset prefix is required")
	}
	for _, part := range strings.Split(prefix, "/") {
		if err := validatePathComponent(part, "dataset prefix component"); err != nil {
			return "", err
		}
	}
	return prefix, nil
}

const (
	ParquetContentType = "application/vnd.apache.parquet"
	JSONContentType    = "application/json"
	CSVContentType     = "text/csv"
	binaryContentType  = "application/octet-stream"
)

// ContentTypeFor returns the content type of the dataset files the loader
// writes, by extension.
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".parquet":
		return ParquetContentType
	case ".json":
		return JSONContentType
	case ".csv":
		return CSVContentType
	default:
		return binaryContentType
	}
}

func IsParquetKey(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), ".parquet")
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
