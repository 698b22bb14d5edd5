// Package errors provides standardized error types for the compilation pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for each stage of the pipeline.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeParseFailed          = "PARSE_ERROR"
	CodeRewriteFailed        = "REWRITE_ERROR"
	CodeSemantic             = "SEMANTIC_ERROR"
	CodeEmitFailed           = "EMIT_ERROR"
	CodeUnsupportedConstruct = "UNSUPPORTED_CONSTRUCT"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeExecutionFailed      = "EXECUTION_ERROR"
	CodeConnectionFailed     = "CONNECTION_FAILED"
	CodeDeadlineExceeded     = "DEADLINE_EXCEEDED"
	CodeCanceled             = "CANCELED"
	CodeInternal             = "INTERNAL_ERROR"
)

// QueryError represents a pipeline error with code, message, and optional details.
type QueryError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code.
func (e *QueryError) Is(target error) bool {
	t, ok := target.(*QueryError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail adds a single detail to the error.
func (e *QueryError) WithDetail(key string, value interface{}) *QueryError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common errors
var (
	ErrMultiStatement   = &QueryError{Code: CodeParseFailed, Message: "multi-statement input is not supported"}
	ErrEmptyStatement   = &QueryError{Code: CodeParseFailed, Message: "empty statement"}
	ErrUnknownBackend   = &QueryError{Code: CodeInvalidRequest, Message: "unknown backend"}
	ErrConnectionFailed = &QueryError{Code: CodeConnectionFailed, Message: "database connection failed"}
	ErrQueryTimeout     = &QueryError{Code: CodeDeadlineExceeded, Message: "query execution timeout"}
	ErrCanceled         = &QueryError{Code: CodeCanceled, Message: "query canceled"}
)

// New creates a new QueryError with the given code and message.
func New(code, message string) *QueryError {
	return &QueryError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new QueryError with a formatted message.
func Newf(code, format string, args ...interface{}) *QueryError {
	return &QueryError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a QueryError.
func Wrap(err error, code, message string) *QueryError {
	if err == nil {
		return nil
	}
	return &QueryError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *QueryError {
	if err == nil {
		return nil
	}
	return &QueryError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// Unsupported builds the error for a construct the target backend cannot
// represent, naming both the backend and the feature.
func Unsupported(backend, feature string) *QueryError {
	return Newf(CodeUnsupportedConstruct, "%s does not support %s", backend, feature).
		WithDetail("backend", backend).
		WithDetail("feature", feature)
}

// IsParse checks if an error is a parse error.
func IsParse(err error) bool {
	return GetCode(err) == CodeParseFailed
}

// IsUnsupported checks if an error is an unsupported-construct error.
func IsUnsupported(err error) bool {
	return GetCode(err) == CodeUnsupportedConstruct
}

// IsExecution checks if an error is an execution error.
func IsExecution(err error) bool {
	switch GetCode(err) {
	case CodeExecutionFailed, CodeConnectionFailed, CodeDeadlineExceeded, CodeCanceled:
		return true
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
