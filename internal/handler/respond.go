package handler

import (
	"encoding/json"
	"net/http"

	"pollhub/pkg/errors"
)

// Response is the uniform envelope every endpoint returns: exactly one of
// Data (success) or Error (failure) is set.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody carries the stable code and human message for a failure, plus
// field-level details for validation errors.
type ErrorBody struct {
	Code    errors.Code            `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&Response{Success: true, Data: data})
}

// respondError maps any error onto the envelope. Errors that are not
// AppErrors become UNKNOWN_ERROR so store failures never leak verbatim.
func respondError(w http.ResponseWriter, err error) {
	appErr := errors.FromError(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	_ = json.NewEncoder(w).Encode(&Response{
		Success: false,
		Error: &ErrorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
	})
}
