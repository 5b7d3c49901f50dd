package core

import (
	"errors"
	"fmt"
)

// Error codes for client-visible rejections.
const (
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeNotFound     = "not_found"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeInternal     = "internal"
)

// CoreError wraps a code and human-readable message. RetryAfter is set only
// for rate_limited rejections and holds the remaining wait in whole seconds.
type CoreError struct {
	Code       string
	Message    string
	RetryAfter int
}

func (e *CoreError) Error() string {
	return e.Message
}

func errForbidden(msg string) *CoreError {
	return &CoreError{Code: ErrCodeForbidden, Message: msg}
}

func errNotFound(msg string) *CoreError {
	return &CoreError{Code: ErrCodeNotFound, Message: msg}
}

func errBadRequest(msg string) *CoreError {
	return &CoreError{Code: ErrCodeBadRequest, Message: msg}
}

func errRateLimited(seconds int) *CoreError {
	return &CoreError{
		Code:       ErrCodeRateLimited,
		Message:    fmt.Sprintf("slow mode: wait %ds before sending again", seconds),
		RetryAfter: seconds,
	}
}

// AsCoreError extracts a CoreError, or converts any other error into a
// generic internal one so store failures never leak details to clients.
func AsCoreError(err error) *CoreError {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return &CoreError{Code: ErrCodeInternal, Message: "internal error"}
}
