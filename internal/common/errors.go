package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
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

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Extraction failure kinds.
var (
	ErrSourceUnavailable     = errors.New("source unavailable")
	ErrUnsupportedFormat     = errors.New("unsupported format")
	ErrCorruptDocument       = errors.New("corrupt document")
	ErrEmptyExtraction       = errors.New("empty extraction")
	ErrNoParametersExtracted = errors.New("no valid test results found")
	ErrAICapability          = errors.New("ai capability error")
)

var kindCodes = map[error]string{
	ErrSourceUnavailable:     "SOURCE_UNAVAILABLE",
	ErrUnsupportedFormat:     "UNSUPPORTED_FORMAT",
	ErrCorruptDocument:       "CORRUPT_DOCUMENT",
	ErrEmptyExtraction:       "EMPTY_EXTRACTION",
	ErrNoParametersExtracted: "NO_PARAMETERS_EXTRACTED",
	ErrAICapability:          "AI_CAPABILITY_ERROR",
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewExtractionError builds an AppError for one of the extraction kinds. errors.Is
// matches both the kind and the underlying cause.
func NewExtractionError(kind error, message string, cause error) *AppError {
	code, ok := kindCodes[kind]
	if !ok {
		code = "EXTRACTION_ERROR"
	}
	if cause != nil {
		return NewAppError(code, message, fmt.Errorf("%w: %w", kind, cause))
	}
	return NewAppError(code, message, kind)
}

// Error categories surfaced in HTTP error bodies.
const (
	CategoryDocumentUnreadable = "document_unreadable"
	CategoryNoTestData         = "no_test_data"
	CategoryInvalidRequest     = "invalid_request"
	CategoryInternal           = "internal"
)

// ErrorCategory tells a caller whether to re-upload (document_unreadable) or enter
// the data manually (no_test_data).
func ErrorCategory(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceUnavailable),
		errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrCorruptDocument):
		return CategoryDocumentUnreadable
	case errors.Is(err, ErrEmptyExtraction),
		errors.Is(err, ErrNoParametersExtracted):
		return CategoryNoTestData
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return CategoryInvalidRequest
	}
	return CategoryInternal
}

// ErrorCode returns the AppError code in err's chain, or INTERNAL_ERROR.
func ErrorCode(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return "INTERNAL_ERROR"
}
