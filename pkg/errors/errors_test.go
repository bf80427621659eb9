package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   Code
		wantStatus int
	}{
		{"Validation", NewValidationError("bad input", nil), CodeValidation, http.StatusBadRequest},
		{"Authentication", NewAuthenticationError("no token"), CodeAuthentication, http.StatusUnauthorized},
		{"PermissionDenied", NewPermissionDeniedError("not yours"), CodePermissionDenied, http.StatusForbidden},
		{"PollNotFound", NewPollNotFoundError("gone"), CodePollNotFound, http.StatusNotFound},
		{"PollExpired", NewPollExpiredError("expired"), CodePollExpired, http.StatusGone},
		{"InvalidOption", NewInvalidOptionError("wrong poll"), CodeInvalidOption, http.StatusBadRequest},
		{"AlreadyVoted", NewAlreadyVotedError("again"), CodeAlreadyVoted, http.StatusConflict},
		{"Internal", NewInternalError(CodeVoteError, "store down", errors.New("boom")), CodeVoteError, http.StatusInternalServerError},
		{"Unknown", NewUnknownError(errors.New("boom")), CodeUnknown, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.StatusCode)
		})
	}
}

func TestAppError_Error(t *testing.T) {
	err := NewPollNotFoundError("Poll not found")
	assert.Equal(t, "POLL_NOT_FOUND: Poll not found", err.Error())

	wrapped := NewInternalError(CodeFetchError, "Failed to fetch poll", errors.New("connection refused"))
	assert.Contains(t, wrapped.Error(), "FETCH_ERROR")
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("pool exhausted")
	err := NewInternalError(CodeCreateError, "Failed to create poll", inner)

	assert.True(t, errors.Is(err, inner))

	var appErr *AppError
	assert.True(t, errors.As(fmt.Errorf("handling request: %w", err), &appErr))
	assert.Equal(t, CodeCreateError, appErr.Code)
}

func TestFromError(t *testing.T) {
	appErr := NewValidationError("bad", nil)
	assert.Same(t, appErr, FromError(appErr))

	wrapped := FromError(errors.New("raw store failure"))
	assert.Equal(t, CodeUnknown, wrapped.Code)
	assert.Equal(t, http.StatusInternalServerError, wrapped.StatusCode)
	// The raw failure stays internal, never in the client-facing message
	assert.NotContains(t, wrapped.Message, "raw store failure")
}
