package query

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsReadOnly(t *testing.T) {
	tests := []struct {
		sql  string
		want bool
	}{
		{"SELECT 1", true},
		{"  select a from t;", true},
		{"WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"(SELECT 1) UNION (SELECT 2)", true},
		{"-- comment\nSELECT 1", true},
		{"/* lead */ SELECT 1", true},
		{"DELETE FROM t", false},
		{"SELECT 1; DROP TABLE t", false},
		{"COPY t TO 'x.csv'", false},
		{"", false},
		{";", false},
	}
	for _, tt := range tests {
		if got := IsReadOnly(tt.sql); got != tt.want {
			t.Fatalf("IsReadOnly(%q) = %v, want %v", tt.sql, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &ExecutionError{Kind: KindNotFound, Message: "missing table"})
	if KindOf(err) != KindNotFound {
		t.Fatalf("KindOf() = %q", KindOf(err))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("foreign errors should be internal")
	}
	if !(&ExecutionError{Kind: KindQuotaExceeded}).Retryable() {
		t.Fatal("quota errors are retryable")
	}
}
