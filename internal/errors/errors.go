// Package errors defines the service error taxonomy shared by all components.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers and for HTTP mapping.
type Code string

const (
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeDuplicateRequest   Code = "DUPLICATE_REQUEST"
	CodeDuplicateRequestID Code = "DUPLICATE_REQUEST_ID"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeGatewayTimeout     Code = "GATEWAY_TIMEOUT"
	CodeGatewayUnreachable Code = "GATEWAY_UNREACHABLE"
	CodeGatewayRejected    Code = "GATEWAY_REJECTED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeStorageFailure     Code = "STORAGE_FAILURE"
	CodeInternal           Code = "INTERNAL"
)

// ServiceError carries a code, a user-facing message and an HTTP status.
type ServiceError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a key/value pair and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Retryable reports whether the caller may retry the same request later
// without changing it.
func (e *ServiceError) Retryable() bool {
	switch e.Code {
	case CodeDuplicateRequest, CodeRateLimitExceeded, CodeGatewayTimeout, CodeGatewayUnreachable, CodeStorageFailure:
		return true
	}
	return false
}

// GetServiceError extracts a *ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// Is allows errors.Is comparisons against sentinel constructors by code.
func (e *ServiceError) Is(target error) bool {
	var se *ServiceError
	if errors.As(target, &se) {
		return e.Code == se.Code
	}
	return false
}

// InvalidArgument reports a bad address, amount or enum value. The message is
// user-facing and must name the offending field.
func InvalidArgument(message string) *ServiceError {
	return &ServiceError{Code: CodeInvalidArgument, Message: message, HTTPStatus: http.StatusBadRequest}
}

// DuplicateRequest reports a submission suppressed by the dedup cache.
func DuplicateRequest(message string) *ServiceError {
	return &ServiceError{Code: CodeDuplicateRequest, Message: message, HTTPStatus: http.StatusTooManyRequests}
}

// DuplicateRequestID reports a withdrawal create with an already-known id.
func DuplicateRequestID(requestID string) *ServiceError {
	return (&ServiceError{
		Code:       CodeDuplicateRequestID,
		Message:    "withdrawal request id already exists",
		HTTPStatus: http.StatusConflict,
	}).WithDetails("request_id", requestID)
}

// RateLimitExceeded reports an exhausted request budget.
func RateLimitExceeded(budget string) *ServiceError {
	return (&ServiceError{
		Code:       CodeRateLimitExceeded,
		Message:    "too many requests",
		HTTPStatus: http.StatusTooManyRequests,
	}).WithDetails("budget", budget)
}

// GatewayTimeout reports a downstream call that exceeded its deadline.
func GatewayTimeout(err error) *ServiceError {
	return &ServiceError{
		Code:       CodeGatewayTimeout,
		Message:    "approval authority timed out",
		HTTPStatus: http.StatusRequestTimeout,
		Err:        err,
	}
}

// GatewayUnreachable reports a transport-level failure reaching the authority.
func GatewayUnreachable(err error) *ServiceError {
	return &ServiceError{
		Code:       CodeGatewayUnreachable,
		Message:    "approval authority unreachable",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// GatewayRejected reports a non-success decision from the authority. The
// authority's response body travels in Details under "detail".
func GatewayRejected(status int, detail interface{}) *ServiceError {
	return (&ServiceError{
		Code:       CodeGatewayRejected,
		Message:    "approval authority rejected the request",
		HTTPStatus: http.StatusBadGateway,
	}).WithDetails("authority_status", status).WithDetails("detail", detail)
}

// NotFound reports an unknown requestId or tx hash.
func NotFound(what, id string) *ServiceError {
	return (&ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", what),
		HTTPStatus: http.StatusNotFound,
	}).WithDetails("id", id)
}

// StorageFailure reports an unavailable or failing backing store.
func StorageFailure(err error) *ServiceError {
	return &ServiceError{
		Code:       CodeStorageFailure,
		Message:    "storage unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}
