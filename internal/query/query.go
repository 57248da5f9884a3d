// Package query is the execution boundary: it runs a read-only analytical
// query against the budget dataset and reports failures as *ExecutionError.
package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Request struct {
	SQL string
	// Table is the canonical table identifier the query refers to. Empty
	// means the executor's configured table.
	Table    string
	RowLimit int
}

type Result struct {
	Columns      []string      `json:"columns"`
	Rows         [][]any       `json:"rows"`
	ScannedFiles int           `json:"scanned_files"`
	ScannedBytes int64         `json:"scanned_bytes"`
	Duration     time.Duration `json:"-"`
}

type Executor interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindMalformedQuery   ErrorKind = "malformed_query"
	KindQuotaExceeded    ErrorKind = "quota_exceeded"
	KindInternal         ErrorKind = "internal"
)

type ExecutionError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("query %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("query %s: %s", e.Kind, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the same query may succeed later.
func (e *ExecutionError) Retryable() bool {
	return e.Kind == KindQuotaExceeded
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	return KindInternal
}

var (
	readOnlyLeading = regexp.MustCompile(`(?is)^\s*(\(\s*)*(SELECT|WITH)\b`)
	blockComment    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment     = regexp.MustCompile(`--[^\n]*`)
)

// IsReadOnly reports whether sqlText is a single SELECT or WITH statement.
func IsReadOnly(sqlText string) bool {
	cleaned := lineComment.ReplaceAllString(blockComment.ReplaceAllString(sqlText, " "), " ")
	cleaned = StripTrailingSemicolons(cleaned)
	if cleaned == "" || strings.Contains(cleaned, ";") {
		return false
	}
	return readOnlyLeading.MatchString(cleaned)
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
