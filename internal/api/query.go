package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/budgetlens/budgetlens/internal/auth"
	"github.com/budgetlens/budgetlens/internal/query"
)

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type queryResponse struct {
	Columns []string       `json:"columns"`
	Rows    [][]any        `json:"rows"`
	Table   string         `json:"table"`
	Stats   map[string]any `json:"stats"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query execution is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if !query.IsReadOnly(request.SQL) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only a single read-only SELECT/WITH query is allowed", false, nil)
		return
	}
	rowLimit := deps.RowLimit
	if request.RowLimit > 0 && (rowLimit <= 0 || request.RowLimit < rowLimit) {
		rowLimit = request.RowLimit
	}

	result, err := deps.Executor.Execute(r.Context(), query.Request{
		SQL:      request.SQL,
		Table:    deps.Table,
		RowLimit: rowLimit,
	})
	if err != nil {
		mapping := mapExecutionError(err)
		message := err.Error()
		var execErr *query.ExecutionError
		if errors.As(err, &execErr) && execErr.Message != "" {
			message = execErr.Message
		}
		writeError(r.Context(), w, mapping.status, mapping.code, message, mapping.retryable, map[string]any{"kind": query.KindOf(err)})
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Columns: result.Columns,
		Rows:    result.Rows,
		Table:   deps.Table,
		Stats: map[string]any{
			"duration_ms":   result.Duration.Milliseconds(),
			"scanned_files": result.ScannedFiles,
			"scanned_bytes": result.ScannedBytes,
			"row_count":     len(result.Rows),
		},
	})
}
