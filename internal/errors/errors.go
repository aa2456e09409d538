package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a phototag error code.
type ErrorCode string

const (
	ErrValidation         ErrorCode = "VALIDATION_ERROR"          // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"                 // 404
	ErrFileNotFound       ErrorCode = "FILE_NOT_FOUND"            // 404
	ErrInvalidState       ErrorCode = "INVALID_STATE"             // 409
	ErrConflict           ErrorCode = "CONFLICT"                  // 409
	ErrCancelled          ErrorCode = "CANCELLED"                 // 499
	ErrStorage            ErrorCode = "STORAGE_ERROR"             // 500
	ErrInternal           ErrorCode = "INTERNAL"                  // 500
	ErrPlatformScheduling ErrorCode = "PLATFORM_SCHEDULING_ERROR" // 503
)

// PhotoTagError represents a structured error with code, status, and details.
type PhotoTagError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *PhotoTagError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying driver or platform error, if any.
func (e *PhotoTagError) Unwrap() error {
	return e.cause
}

// NewValidation creates a 400 error for malformed input.
func NewValidation(msg string) *PhotoTagError {
	return &PhotoTagError{
		Code:    ErrValidation,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for an unknown record or alarm.
func NewNotFound(kind, id string) *PhotoTagError {
	return &PhotoTagError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *PhotoTagError {
	return &PhotoTagError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewInvalidState creates a 409 error for an operation that the alarm's
// current status does not allow.
func NewInvalidState(alarmID, status string) *PhotoTagError {
	return &PhotoTagError{
		Code:    ErrInvalidState,
		Status:  409,
		Message: fmt.Sprintf("alarm %s is already %s", alarmID, status),
		Details: map[string]any{"alarm_id": alarmID, "status": status},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *PhotoTagError {
	return &PhotoTagError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewCancelled creates a 499 error when the caller's context ends mid-operation.
func NewCancelled(operation string) *PhotoTagError {
	return &PhotoTagError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
	}
}

// NewStorage creates a 500 error for a failed durable read or write.
func NewStorage(err error) *PhotoTagError {
	msg := "storage error"
	if err != nil {
		msg = err.Error()
	}
	return &PhotoTagError{
		Code:    ErrStorage,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// NewPlatformScheduling creates a 503 error when the timer service rejects a
// callback request.
func NewPlatformScheduling(alarmID string, err error) *PhotoTagError {
	msg := fmt.Sprintf("reminder %s may not fire: timer request rejected", alarmID)
	if err != nil {
		msg = fmt.Sprintf("reminder %s may not fire: %v", alarmID, err)
	}
	return &PhotoTagError{
		Code:    ErrPlatformScheduling,
		Status:  503,
		Message: msg,
		Details: map[string]any{"alarm_id": alarmID},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *PhotoTagError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &PhotoTagError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err is (or wraps) a PhotoTagError with the given code.
func Is(err error, code ErrorCode) bool {
	var pErr *PhotoTagError
	if stderrors.As(err, &pErr) {
		return pErr.Code == code
	}
	return false
}

// As returns the PhotoTagError in err's chain, or nil.
func As(err error) *PhotoTagError {
	var pErr *PhotoTagError
	if stderrors.As(err, &pErr) {
		return pErr
	}
	return nil
}

// IsBenign reports whether err is an outcome callers treat as a no-op rather
// than a failure to show the user.
func IsBenign(err error) bool {
	return Is(err, ErrNotFound) || Is(err, ErrInvalidState)
}
