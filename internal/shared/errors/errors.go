package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeDeliveryFailure  = "DELIVERY_FAILURE"
	CodeDataSource       = "DATA_SOURCE_FAILURE"
	CodeStore            = "STORE_FAILURE"
)

// ErrPermissionDenied is returned by the delivery primitive when it cannot
// deliver at all. Callers treat it as "feature disabled".
var ErrPermissionDenied = &AppError{
	Code:    CodePermissionDenied,
	Message: "notification delivery is unavailable",
}

// AppError represents an application error
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// HasCode reports whether any AppError in err's tree has the given code
func HasCode(err error, code string) bool {
	return stderrors.Is(err, &AppError{Code: code})
}

// NewValidationError creates a new validation error
func NewValidationError(message string, err error) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
		Err:     err,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, err error) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Err:     err,
	}
}

// NewDeliveryError wraps a per-alert delivery failure
func NewDeliveryError(message string, err error) *AppError {
	return &AppError{
		Code:    CodeDeliveryFailure,
		Message: message,
		Err:     err,
	}
}

// NewDataSourceError wraps a failure to load items of one category
func NewDataSourceError(message string, err error) *AppError {
	return &AppError{
		Code:    CodeDataSource,
		Message: message,
		Err:     err,
	}
}

// NewStoreError wraps a failure to persist settings
func NewStoreError(message string, err error) *AppError {
	return &AppError{
		Code:    CodeStore,
		Message: message,
		Err:     err,
	}
}
