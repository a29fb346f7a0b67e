package common

import (
	"errors"
	"net/http"
)

// AppError is an error that already knows how it is rendered to API clients.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Unauthorized wraps cause as a 401 with a generic message.
func Unauthorized(message string, cause error) *AppError {
	return NewAppError("UNAUTHORIZED", message, http.StatusUnauthorized, cause)
}

// Invalid reports a request that failed a business validation rule.
func Invalid(message string) *AppError {
	return NewAppError("VALIDATION_ERROR", message, http.StatusBadRequest, nil)
}

// AsAppError unwraps err to an AppError, if it carries one.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) && target != nil {
		return target, true
	}
	return nil, false
}
