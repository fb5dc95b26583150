package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/venthub/internal/automation"
	"github.com/nerrad567/venthub/internal/device"
	"github.com/nerrad567/venthub/internal/group"
	"github.com/nerrad567/venthub/internal/hub"
	"github.com/nerrad567/venthub/internal/protocol"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeUnreachable = "device_unreachable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeServiceError maps a domain error onto a response. Storage failures
// and anything unrecognised become a 500 with a generic message.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var perr *protocol.ProtocolError
	switch {
	case errors.Is(err, device.ErrDeviceNotFound), errors.Is(err, hub.ErrHubNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, automation.ErrRuleNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, automation.ErrInvalidRule),
		errors.Is(err, automation.ErrInvalidTime),
		errors.Is(err, group.ErrUnknownTarget):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, automation.ErrRuleExists), errors.Is(err, hub.ErrNoAddress):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.As(err, &perr):
		writeError(w, http.StatusBadGateway, ErrCodeUnreachable, err.Error())
	default:
		writeInternalError(w, fallback)
	}
}
