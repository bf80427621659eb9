package errors

import (
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error code. The set is closed: every
// failure crossing the service boundary carries exactly one of these.
type Code string

const (
	CodeFetchError       Code = "FETCH_ERROR"
	CodeCreateError      Code = "CREATE_ERROR"
	CodeUpdateError      Code = "UPDATE_ERROR"
	CodeDeleteError      Code = "DELETE_ERROR"
	CodeVoteError        Code = "VOTE_ERROR"
	CodePollNotFound     Code = "POLL_NOT_FOUND"
	CodeInvalidOption    Code = "INVALID_OPTION"
	CodeAlreadyVoted     Code = "ALREADY_VOTED"
	CodePollExpired      Code = "POLL_EXPIRED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeAuthentication   Code = "AUTHENTICATION_ERROR"
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeUnknown          Code = "UNKNOWN_ERROR"
)

// AppError is a structured application error. Internal is never serialized;
// it exists so logs can carry the underlying store or gateway failure while
// the caller sees only the code and message.
type AppError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Internal   error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// NewValidationError creates a validation error. Details typically carries
// the field-level violations under "fields".
func NewValidationError(message string, details map[string]interface{}) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *AppError {
	return &AppError{
		Code:       CodeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewPermissionDeniedError creates an authorization error.
func NewPermissionDeniedError(message string) *AppError {
	return &AppError{
		Code:       CodePermissionDenied,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NewPollNotFoundError creates a not-found error for a poll lookup.
func NewPollNotFoundError(message string) *AppError {
	return &AppError{
		Code:       CodePollNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewPollExpiredError creates an error for votes against inactive or
// expired polls.
func NewPollExpiredError(message string) *AppError {
	return &AppError{
		Code:       CodePollExpired,
		Message:    message,
		StatusCode: http.StatusGone,
	}
}

// NewInvalidOptionError creates an error for an option that does not belong
// to the targeted poll.
func NewInvalidOptionError(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidOption,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewAlreadyVotedError creates a conflict error for a redundant vote. The
// default vote policy treats a re-vote as an option change, so this is
// reserved for deployments that opt into strict single-cast semantics.
func NewAlreadyVotedError(message string) *AppError {
	return &AppError{
		Code:       CodeAlreadyVoted,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewInternalError creates an operation failure with the given taxonomy
// code, wrapping the underlying store error for logging.
func NewInternalError(code Code, message string, internal error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// NewUnknownError wraps a failure that matched no other taxonomy code.
func NewUnknownError(internal error) *AppError {
	return &AppError{
		Code:       CodeUnknown,
		Message:    "An unexpected error occurred",
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// FromError returns err as an *AppError, wrapping anything else as
// UNKNOWN_ERROR so raw store failures never cross the boundary.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewUnknownError(err)
}
