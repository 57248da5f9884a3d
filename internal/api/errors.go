package api

import (
	"errors"
	"net/http"

	"github.com/budgetlens/budgetlens/internal/llm"
	"github.com/budgetlens/budgetlens/internal/nl2q"
	"github.com/budgetlens/budgetlens/internal/query"
)

type errorMapping struct {
	status    int
	code      string
	retryable bool
}

var executionErrors = map[query.ErrorKind]errorMapping{
	query.KindNotFound:         {http.StatusNotFound, "TABLE_NOT_FOUND", false},
	query.KindPermissionDenied: {http.StatusForbidden, "QUERY_FORBIDDEN", false},
	query.KindMalformedQuery:   {http.StatusBadRequest, "QUERY_MALFORMED", false},
	query.KindQuotaExceeded:    {http.StatusTooManyRequests, "QUOTA_EXCEEDED", true},
	query.KindInternal:         {http.StatusInternalServerError, "QUERY_EXECUTION_FAILED", true},
}

func mapExecutionError(err error) errorMapping {
	if mapping, ok := executionErrors[query.KindOf(err)]; ok {
		return mapping
	}
	return executionErrors[query.KindInternal]
}

// mapConversionError picks the HTTP response for a failed question. Model
// failures are retryable unless credentials or authorization are at fault.
func mapConversionError(err error) errorMapping {
	var convErr *nl2q.Error
	if !errors.As(err, &convErr) {
		return errorMapping{http.StatusInternalServerError, "CONVERSION_FAILED", true}
	}
	switch convErr.Kind {
	case nl2q.KindInvalidRequest:
		return errorMapping{http.StatusBadRequest, "INVALID_REQUEST", false}
	case nl2q.KindSchemaLoad, nl2q.KindSchemaEmpty:
		return errorMapping{http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", true}
	case nl2q.KindModelInvocation:
		switch llm.KindOf(err) {
		case llm.KindCredentials, llm.KindAuth:
			return errorMapping{http.StatusBadGateway, "MODEL_UNAVAILABLE", false}
		case llm.KindQuota:
			return errorMapping{http.StatusTooManyRequests, "MODEL_QUOTA_EXCEEDED", true}
		case llm.KindTimeout:
			return errorMapping{http.StatusGatewayTimeout, "MODEL_TIMEOUT", true}
		default:
			return errorMapping{http.StatusBadGateway, "TRANSLATE_FAILED", true}
		}
	case nl2q.KindParse, nl2q.KindSanitization:
		return errorMapping{http.StatusUnprocessableEntity, "NO_QUERY_GENERATED", true}
	case nl2q.KindExecution:
		return mapExecutionError(err)
	default:
		return errorMapping{http.StatusInternalServerError, "CONVERSION_FAILED", true}
	}
}
