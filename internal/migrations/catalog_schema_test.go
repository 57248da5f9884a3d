package migrations

import (
	"strings"
	"testing"
)

func TestCatalogMigrationsContainRequiredTablesAndIndexes(t *testing.T) {
	required := map[string][]string{
		"sql/000001_dataset_column.up.sql": {
			"CREATE TABLE dataset_column",
			"PRIMARY KEY (table_name, column_name)",
			"CREATE UNIQUE INDEX idx_dataset_column_table_position",
		},
		"sql/000002_conversion_log.up.sql": {
			"CREATE TABLE conversion_log",
			"conversion_id  UUID",
			"warnings_json  JSONB",
			"CREATE INDEX idx_conversion_log_created_at_desc",
		},
	}
	for file, snippets := range required {
		body, err := embeddedFS.ReadFile(file)
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", file, err)
		}
		for _, snippet := range snippets {
			if !strings.Contains(string(body), snippet) {
				t.Fatalf("%s missing required snippet: %s", file, snippet)
			}
		}
	}
}
