package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context. The code of a wrapped
// AppError is preserved so callers can still classify the failure.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// GetCode returns the code of the outermost AppError in the chain, or "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether any AppError in the chain carries code
func HasCode(err error, code string) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				if HasCode(inner, code) {
					return true
				}
			}
			return false
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// Predefined error codes
const (
	CodeConfigInvalid     = "CONFIGURATION_ERROR"
	CodeDataIntegrity     = "DATA_INTEGRITY_ERROR"
	CodeNumericDegeneracy = "NUMERIC_DEGENERACY"
	CodeExternalProcess   = "EXTERNAL_PROCESS_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInternalError     = "INTERNAL_ERROR"
	CodeDatabaseError     = "DATABASE_ERROR"
)

// ConfigInvalid reports a configuration or argument error. These abort
// before any computation starts.
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

// ConfigInvalidf is ConfigInvalid with a formatted message
func ConfigInvalidf(format string, args ...interface{}) *AppError {
	return Newf(CodeConfigInvalid, format, args...)
}

// DataIntegrity reports missing, partial or inconsistent result data
func DataIntegrity(message string) *AppError {
	return New(CodeDataIntegrity, message)
}

// DataIntegrityf is DataIntegrity with a formatted message
func DataIntegrityf(format string, args ...interface{}) *AppError {
	return Newf(CodeDataIntegrity, format, args...)
}

// NumericDegeneracy reports a degenerate numeric input that has no fallback
func NumericDegeneracy(message string) *AppError {
	return New(CodeNumericDegeneracy, message)
}

// ExternalProcessError reports a failed or unparseable external classifier run
func ExternalProcessError(command string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalProcess,
		Message: fmt.Sprintf("external process %q failed", command),
		Cause:   cause,
	}
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}
