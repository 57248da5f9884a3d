package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/budgetlens/budgetlens/internal/auth"
	"github.com/budgetlens/budgetlens/internal/catalog"
)

func handleListHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", "conversion history is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleHistoryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	filter, err := historyFilterFromQuery(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FILTER", err.Error(), false, nil)
		return
	}
	entries, err := deps.History.ListConversions(r.Context(), filter)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list conversions", true, map[string]any{"details": err.Error()})
		return
	}

	response := map[string]any{"conversions": entries}
	if len(entries) == filter.NormalizedLimit() {
		response["next_before"] = entries[len(entries)-1].CreatedAt.Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, response)
}

func handleGetHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", "conversion history is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleHistoryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ID", "conversion id must be a uuid", false, nil)
		return
	}
	entry, err := deps.History.GetConversion(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "CONVERSION_NOT_FOUND", "conversion was not found", false, map[string]any{"id": id})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to load conversion", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func historyFilterFromQuery(r *http.Request) (catalog.ConversionFilter, error) {
	values := r.URL.Query()
	var filter catalog.ConversionFilter
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, errors.New("limit must be a positive integer")
		}
		filter.Limit = limit
	}
	switch outcome := catalog.Outcome(strings.ToLower(strings.TrimSpace(values.Get("outcome")))); outcome {
	case "":
	case catalog.OutcomeSuccess, catalog.OutcomeFailure:
		filter.Outcome = outcome
	default:
		return filter, errors.New("outcome must be success or failure")
	}
	if raw := strings.TrimSpace(values.Get("before")); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return filter, errors.New("before must be an RFC 3339 timestamp")
		}
		before = before.UTC()
		filter.Before = &before
	}
	return filter, nil
}
