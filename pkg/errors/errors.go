package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"

	// Rule document errors
	ErrDocumentParse   ErrorCode = "DOCUMENT_PARSE"
	ErrDocumentInclude ErrorCode = "DOCUMENT_INCLUDE"

	// Identifier errors
	ErrArkFormat ErrorCode = "ARK_FORMAT"
	ErrNameCodec ErrorCode = "NAME_CODEC"

	// Storage errors
	ErrStoreOpen     ErrorCode = "STORE_OPEN"
	ErrStoreConflict ErrorCode = "STORE_CONFLICT"
	ErrStoreWrite    ErrorCode = "STORE_WRITE"

	// FileSystem errors
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrFileAccess   ErrorCode = "FILE_ACCESS"
)

// MetafilesError represents a structured error with code and details
type MetafilesError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *MetafilesError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *MetafilesError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface; two errors match when their codes match
func (e *MetafilesError) Is(target error) bool {
	var targetErr *MetafilesError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new MetafilesError with the given code and message
func New(code ErrorCode, message string) *MetafilesError {
	return &MetafilesError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new MetafilesError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *MetafilesError {
	return &MetafilesError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a MetafilesError
func Wrap(err error, code ErrorCode, message string) *MetafilesError {
	if err == nil {
		return nil
	}
	return &MetafilesError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *MetafilesError {
	if err == nil {
		return nil
	}
	return &MetafilesError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *MetafilesError) WithDetail(key string, value interface{}) *MetafilesError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetCode extracts the error code from an error, returning ErrUnknown
// for errors that are not MetafilesError
func GetCode(err error) ErrorCode {
	var mfErr *MetafilesError
	if errors.As(err, &mfErr) {
		return mfErr.Code
	}
	return ErrUnknown
}

// IsCode checks whether an error carries the given code
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}
