// Package errors provides typed service errors with stable codes and HTTP
// status mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category across service boundaries.
type Code string

const (
	CodeInvalidAccount Code = "INVALID_ACCOUNT"
	CodeSequenceFetch  Code = "SEQUENCE_FETCH_FAILED"
	CodeCircuitOpen    Code = "CIRCUIT_OPEN"
	CodeTimeout        Code = "TIMEOUT"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeInvalidToken   Code = "INVALID_TOKEN"
	CodeNotFound       Code = "NOT_FOUND"
	CodeRateLimited    Code = "RATE_LIMITED"
	CodeBadRequest     Code = "BAD_REQUEST"
	CodeInternal       Code = "INTERNAL"
)

// ServiceError is the canonical error carried across the service layer.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a key/value detail and returns the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code Code, message string, status int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// InvalidAccount reports a malformed or empty account key.
func InvalidAccount(message string) *ServiceError {
	return newError(CodeInvalidAccount, message, http.StatusBadRequest, nil)
}

// SequenceFetch wraps a failed on-chain sequence lookup.
func SequenceFetch(err error) *ServiceError {
	return newError(CodeSequenceFetch, "failed to fetch account sequence", http.StatusBadGateway, err)
}

// Unauthorized reports a missing or rejected credential.
func Unauthorized(message string) *ServiceError {
	return newError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

// InvalidToken reports a token that failed validation.
func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, "invalid token", http.StatusUnauthorized, err)
}

// NotFound reports a missing resource.
func NotFound(message string) *ServiceError {
	return newError(CodeNotFound, message, http.StatusNotFound, nil)
}

// RateLimited reports a throttled request.
func RateLimited(message string) *ServiceError {
	return newError(CodeRateLimited, message, http.StatusTooManyRequests, nil)
}

// BadRequest reports a malformed request.
func BadRequest(message string) *ServiceError {
	return newError(CodeBadRequest, message, http.StatusBadRequest, nil)
}

// Internal reports an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, message, http.StatusInternalServerError, err)
}

// GetServiceError extracts a ServiceError from err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}
