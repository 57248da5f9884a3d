package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/budgetlens/budgetlens/internal/auth"
)

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema registry is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	fields, err := deps.Schema.Fields(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "failed to load schema", true, map[string]any{"details": err.Error()})
		return
	}
	fingerprint, err := deps.Schema.Fingerprint(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "failed to load schema", true, map[string]any{"details": err.Error()})
		return
	}

	response := map[string]any{
		"table":       deps.Table,
		"fingerprint": fingerprint,
		"fields":      fields,
	}
	if deps.Years != nil {
		if years, err := deps.Years.Years(r.Context()); err == nil {
			response["available_years"] = years
		} else if deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "available years unknown", slog.Any("error", err))
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
