// Package handler exposes the HTTP surface: checkout, order lookup, and the
// payment gateway webhook.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"storefront/internal/model"

	"github.com/rs/zerolog"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already out; nothing useful left to do.
		return
	}
}

// writeError writes a coded error response.
func writeError(w http.ResponseWriter, status int, code, message string, logger zerolog.Logger) {
	logger.Warn().Str("code", code).Int("status", status).Str("message", message).Msg("request rejected")
	writeJSON(w, status, model.ErrorResponse{Error: code, Message: message})
}

// writeServiceError maps a service-layer error onto an HTTP response. Typed
// domain errors carry their code to the client; anything else is a 500 with
// the detail kept server-side.
func writeServiceError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	var stockErr *model.StockError
	if errors.As(err, &stockErr) {
		// Retryable or not, a stock conflict is contention over current
		// state: 409.
		writeError(w, http.StatusConflict, stockErr.Code, stockErr.Error(), logger)
		return
	}

	var unavailable *model.ProductUnavailableError
	if errors.As(err, &unavailable) {
		writeError(w, http.StatusBadRequest, model.ErrCodeProductUnavailable, unavailable.Error(), logger)
		return
	}

	var domainErr *model.DomainError
	if errors.As(err, &domainErr) {
		status := http.StatusBadRequest
		switch domainErr.Code {
		case model.ErrCodeForbidden:
			status = http.StatusForbidden
		case model.ErrCodeInternalError:
			status = http.StatusInternalServerError
		}
		writeError(w, status, domainErr.Code, domainErr.Message, logger)
		return
	}

	logger.Error().Err(err).Msg("internal error")
	writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{
		Error:   model.ErrCodeInternalError,
		Message: "an internal error occurred",
	})
}
