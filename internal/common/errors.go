package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Kind    error
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches the error kind so callers can use errors.Is(err, ErrExtraction).
func (e *AppError) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

// Error kinds. Config errors abort the run; transport errors abort a fetch or flag a
// message; extraction and IO errors are isolated to one message (or one output).
var (
	ErrConfig       = errors.New("configuration error")
	ErrTransport    = errors.New("transport error")
	ErrExtraction   = errors.New("extraction error")
	ErrIO           = errors.New("io error")
	ErrInvalidInput = errors.New("invalid input")
)

// Error codes.
const (
	CodeConfig     = "CONFIG_ERROR"
	CodeTransport  = "TRANSPORT_ERROR"
	CodeExtraction = "EXTRACTION_ERROR"
	CodeIO         = "IO_ERROR"
)

// Error constructors
func NewAppError(code string, kind error, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

func NewConfigError(message string, cause error) error {
	return NewAppError(CodeConfig, ErrConfig, message, cause)
}

func NewTransportError(message string, cause error) error {
	return NewAppError(CodeTransport, ErrTransport, message, cause)
}

func NewExtractionError(message string, cause error) error {
	return NewAppError(CodeExtraction, ErrExtraction, message, cause)
}

func NewIOError(message string, cause error) error {
	return NewAppError(CodeIO, ErrIO, message, cause)
}

func ConfigErrorf(format string, args ...any) error {
	return NewConfigError(fmt.Sprintf(format, args...), nil)
}

func ExtractionErrorf(format string, args ...any) error {
	return NewExtractionError(fmt.Sprintf(format, args...), nil)
}
