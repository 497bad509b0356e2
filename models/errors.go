package models

import (
	"errors"
	"fmt"
)

// Error codes used in run diagnostics and API responses.
const (
	ErrCodeStartup       = "STARTUP_FAILURE"
	ErrCodeNavigation    = "NAVIGATION_FAILED"
	ErrCodeInputNotFound = "INPUT_NOT_FOUND"
	ErrCodeSubmission    = "SUBMISSION_FAILED"
	ErrCodeTimeout       = "RESULTS_TIMEOUT"
	ErrCodeEmptyFilter   = "EMPTY_FILTER"
	ErrCodeDownload      = "DOWNLOAD_FAILED"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeInternal      = "INTERNAL_ERROR"

	// Wrapper-only codes.
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeRunFailed    = "RUN_FAILED"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type RunError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NewRunError creates a new RunError.
func NewRunError(code, message string, err error) *RunError {
	return &RunError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *RunError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// Fatal reports whether the error stops the whole run. Timeouts and empty
// filters end the run cleanly; everything else aborts it.
func (e *RunError) Fatal() bool {
	switch e.Code {
	case ErrCodeTimeout, ErrCodeEmptyFilter, ErrCodeDownload:
		return false
	default:
		return true
	}
}

// ErrorCode extracts the RunError code from err, or ErrCodeInternal.
func ErrorCode(err error) string {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code
	}
	return ErrCodeInternal
}
