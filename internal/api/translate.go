package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/budgetlens/budgetlens/internal/auth"
	"github.com/budgetlens/budgetlens/internal/nl2q"
	"github.com/budgetlens/budgetlens/internal/viz"
)

type questionRequest struct {
	Question       string          `json:"question"`
	Filters        nl2q.Filters    `json:"filters"`
	AvailableYears *nl2q.YearRange `json:"available_years"`
	// Visualization overrides the chart choice on /v1/ask.
	Visualization string `json:"visualization"`
}

func (q questionRequest) toRequest() nl2q.Request {
	return nl2q.Request{
		Question:       strings.TrimSpace(q.Question),
		Filters:        q.Filters,
		AvailableYears: q.AvailableYears,
	}
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (questionRequest, bool) {
	var req questionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return questionRequest{}, false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return questionRequest{}, false
	}
	return req, true
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	req, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	if req.Visualization != "" {
		writeError(r.Context(), w, http.StatusBadRequest, "VISUALIZATION_UNSUPPORTED", "visualization applies to /v1/ask only", false, nil)
		return
	}

	translation, err := deps.Asker.Translate(r.Context(), req.toRequest())
	if err != nil {
		writeConversionError(w, r, err, translation.Conversion, nil)
		return
	}
	writeJSON(w, http.StatusOK, translation)
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	req, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	preference, err := viz.ParseVizType(req.Visualization)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_VISUALIZATION", err.Error(), false, nil)
		return
	}

	answer, err := deps.Asker.Ask(r.Context(), req.toRequest(), preference)
	if err != nil {
		writeConversionError(w, r, err, answer.Conversion, map[string]any{"id": answer.ID})
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func writeConversionError(w http.ResponseWriter, r *http.Request, err error, result nl2q.Result, extra map[string]any) {
	mapping := mapConversionError(err)
	details := map[string]any{
		"strategy": result.Strategy,
		"path":     result.Path,
	}
	if result.Query != "" {
		details["query"] = result.Query
	}
	var convErr *nl2q.Error
	if errors.As(err, &convErr) {
		details["failure"] = convErr.Kind
		if convErr.Cause != nil {
			details["details"] = convErr.Cause.Error()
		}
	}
	for key, value := range extra {
		details[key] = value
	}
	message := result.Explanation
	if convErr != nil && convErr.Kind == nl2q.KindExecution {
		message = convErr.Message
	}
	if message == "" {
		message = err.Error()
	}
	writeError(r.Context(), w, mapping.status, mapping.code, message, mapping.retryable, details)
}
