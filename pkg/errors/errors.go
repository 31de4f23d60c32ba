// Package errors provides structured error handling for userdesk
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/memtensor/userdesk/pkg/types"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField  ErrorCode = "MISSING_FIELD"
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"

	// Authentication/Authorization errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeLockedOut    ErrorCode = "LOCKED_OUT"

	// Resource errors
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// System errors
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeStorage            ErrorCode = "STORAGE_ERROR"

	// Backend API errors
	ErrCodeAPIError ErrorCode = "API_ERROR"

	// View engine errors
	ErrCodeDataFetch          ErrorCode = "DATA_FETCH_ERROR"
	ErrCodeRender             ErrorCode = "RENDER_ERROR"
	ErrCodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"

	// Configuration errors
	ErrCodeConfigError    ErrorCode = "CONFIG_ERROR"
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"
)

// AppError represents a structured error in userdesk
type AppError struct {
	Type       types.ErrorType        `json:"type"`
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithRequestID adds a request ID to the error
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// WithStackTrace adds a stack trace to the error
func (e *AppError) WithStackTrace() *AppError {
	e.StackTrace = getStackTrace()
	return e
}

// NewAppError creates a new userdesk error
func NewAppError(errType types.ErrorType, code ErrorCode, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// NewAppErrorWithCause creates a new userdesk error with a cause
func NewAppErrorWithCause(errType types.ErrorType, code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Validation error constructors
func NewValidationError(message string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeValidation, message)
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeInvalidInput, message)
}

func NewMissingFieldError(field string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeMissingField,
		fmt.Sprintf("missing required field: %s", field)).WithDetail("field", field)
}

func NewInvalidFormatError(field, expectedFormat string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeInvalidFormat,
		fmt.Sprintf("invalid format for field %s, expected: %s", field, expectedFormat)).
		WithDetail("field", field).WithDetail("expected_format", expectedFormat)
}

// Authentication/Authorization error constructors
func NewUnauthorizedError(message string) *AppError {
	return NewAppError(types.ErrorTypeUnauthorized, ErrCodeUnauthorized, message)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(types.ErrorTypeUnauthorized, ErrCodeForbidden, message)
}

func NewTokenExpiredError() *AppError {
	return NewAppError(types.ErrorTypeUnauthorized, ErrCodeTokenExpired, "token has expired")
}

func NewInvalidTokenError() *AppError {
	return NewAppError(types.ErrorTypeUnauthorized, ErrCodeInvalidToken, "invalid token")
}

func NewLockedOutError(retryAfter string) *AppError {
	return NewAppError(types.ErrorTypeUnauthorized, ErrCodeLockedOut,
		"too many failed login attempts").WithDetail("retry_after", retryAfter)
}

// Resource error constructors
func NewNotFoundError(resource string) *AppError {
	return NewAppError(types.ErrorTypeNotFound, ErrCodeNotFound,
		fmt.Sprintf("%s not found", resource)).WithDetail("resource", resource)
}

func NewConflictError(message string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeConflict, message)
}

// System error constructors
func NewInternalError(message string) *AppError {
	return NewAppError(types.ErrorTypeInternal, ErrCodeInternal, message)
}

func NewInternalErrorWithCause(message string, cause error) *AppError {
	return NewAppErrorWithCause(types.ErrorTypeInternal, ErrCodeInternal, message, cause)
}

func NewServiceUnavailableError(service string) *AppError {
	return NewAppError(types.ErrorTypeExternal, ErrCodeServiceUnavailable,
		fmt.Sprintf("%s service is unavailable", service)).WithDetail("service", service)
}

func NewTimeoutError(operation string) *AppError {
	return NewAppError(types.ErrorTypeExternal, ErrCodeTimeout,
		fmt.Sprintf("%s operation timed out", operation)).WithDetail("operation", operation)
}

func NewRateLimitedError(message string) *AppError {
	return NewAppError(types.ErrorTypeExternal, ErrCodeRateLimited, message)
}

func NewStorageError(message string, cause error) *AppError {
	return NewAppErrorWithCause(types.ErrorTypeInternal, ErrCodeStorage, message, cause)
}

// NewAPIError reports a failed backend call. The backend's response body is
// deliberately not part of the message; only the status is kept as a detail.
func NewAPIError(operation string, status int) *AppError {
	return NewAppError(types.ErrorTypeExternal, ErrCodeAPIError,
		fmt.Sprintf("%s failed", operation)).
		WithDetail("operation", operation).WithDetail("status", status)
}

// View engine error constructors

// NewDataFetchError reports a failed record refresh. It is recoverable: the
// previous view is retained.
func NewDataFetchError(cause error) *AppError {
	return NewAppErrorWithCause(types.ErrorTypeExternal, ErrCodeDataFetch, "failed to refresh records", cause)
}

// NewRenderError reports a column render function that failed for one cell
func NewRenderError(column, recordID string, cause error) *AppError {
	return NewAppErrorWithCause(types.ErrorTypeInternal, ErrCodeRender,
		fmt.Sprintf("render failed for column %s", column), cause).
		WithDetail("column", column).WithDetail("record_id", recordID)
}

// NewInvariantViolation reports a programmer error such as a negative page size
// or an unknown sort key
func NewInvariantViolation(message string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeInvariantViolation, message)
}

// Configuration error constructors
func NewConfigError(message string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeConfigError, message)
}

func NewConfigNotFoundError(configPath string) *AppError {
	return NewAppError(types.ErrorTypeNotFound, ErrCodeConfigNotFound,
		fmt.Sprintf("configuration file not found: %s", configPath)).WithDetail("config_path", configPath)
}

func NewConfigInvalidError(message string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeConfigInvalid, message)
}

// Helper functions
func getStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var trace strings.Builder
	for {
		frame, more := frames.Next()
		trace.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		if !more {
			break
		}
	}

	return trace.String()
}

// IsAppError checks if an error is, or wraps, an AppError
func IsAppError(err error) bool {
	return GetAppError(err) != nil
}

// GetAppError extracts the first AppError in err's chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// GetCode returns the code of the first AppError in err's chain, or "" if none
func GetCode(err error) ErrorCode {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err's chain contains an AppError with the given code
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsRetryable reports whether an operation failing with err may succeed on retry
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case ErrCodeServiceUnavailable, ErrCodeTimeout, ErrCodeRateLimited:
		return true
	case ErrCodeAPIError:
		status, _ := GetAppError(err).Details["status"].(int)
		return status >= 500
	default:
		return false
	}
}

// WrapError wraps an error as an AppError
func WrapError(err error, errType types.ErrorType, code ErrorCode, message string) *AppError {
	return NewAppErrorWithCause(errType, code, message, err)
}

// ErrorList represents a list of errors
type ErrorList struct {
	Errors []*AppError `json:"errors"`
}

// Error implements the error interface
func (el *ErrorList) Error() string {
	var messages []string
	for _, err := range el.Errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Add adds an error to the list
func (el *ErrorList) Add(err *AppError) {
	el.Errors = append(el.Errors, err)
}

// HasErrors returns true if there are errors
func (el *ErrorList) HasErrors() bool {
	return len(el.Errors) > 0
}

// ToError returns the ErrorList as an error if it has errors, otherwise nil
func (el *ErrorList) ToError() error {
	if el.HasErrors() {
		return el
	}
	return nil
}

// NewErrorList creates a new error list
func NewErrorList() *ErrorList {
	return &ErrorList{
		Errors: make([]*AppError, 0),
	}
}
