// Package handlers provides the HTTP surface of the pharmacy workflow API.
package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/domain/fault"
)

// statusFor maps a workflow fault kind to its HTTP status.
func statusFor(err error) int {
	kind, ok := fault.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case fault.Validation:
		return http.StatusBadRequest
	case fault.Authorization:
		return http.StatusForbidden
	case fault.InvalidTransition, fault.Conflict:
		return http.StatusConflict
	case fault.NotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		respondJSON(w, code, map[string]string{"error": "internal server error"})
		return
	}
	respondJSON(w, code, map[string]string{"error": err.Error()})
}
