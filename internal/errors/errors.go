// Package errors provides the typed error taxonomy shared by the scanner,
// the history store, and the API. Errors carry a code that callers match
// with Is, so wrapping with fmt.Errorf("...: %w") keeps them recognizable.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	CodeInvalidTarget       ErrorCode = "INVALID_TARGET"
	CodeInvalidOptions      ErrorCode = "INVALID_OPTIONS"
	CodeOutOfScope          ErrorCode = "OUT_OF_SCOPE"
	CodeExecutableNotFound  ErrorCode = "EXECUTABLE_NOT_FOUND"
	CodeScanTimeout         ErrorCode = "SCAN_TIMEOUT"
	CodeScanFailed          ErrorCode = "SCAN_FAILED"
	CodeInsufficientHistory ErrorCode = "INSUFFICIENT_HISTORY"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeTaskNotFound        ErrorCode = "TASK_NOT_FOUND"
	CodeQueueFull           ErrorCode = "QUEUE_FULL"
	CodeStorage             ErrorCode = "STORAGE"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
)

// Sentinels for use with Is.
var (
	ErrInvalidTarget       = &Error{Code: CodeInvalidTarget, Message: "invalid IP address or hostname"}
	ErrInvalidOptions      = &Error{Code: CodeInvalidOptions, Message: "invalid scan options"}
	ErrOutOfScope          = &Error{Code: CodeOutOfScope, Message: "target is outside the allowed scope"}
	ErrExecutableNotFound  = &Error{Code: CodeExecutableNotFound, Message: "scanner executable not found"}
	ErrScanTimeout         = &Error{Code: CodeScanTimeout, Message: "scan timed out"}
	ErrScanFailed          = &Error{Code: CodeScanFailed, Message: "scan failed"}
	ErrInsufficientHistory = &Error{Code: CodeInsufficientHistory, Message: "not enough scans to compare"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "no scans found for the given target"}
	ErrTaskNotFound        = &Error{Code: CodeTaskNotFound, Message: "task not found"}
	ErrQueueFull           = &Error{Code: CodeQueueFull, Message: "scan queue is full"}
	ErrStorage             = &Error{Code: CodeStorage, Message: "storage failure"}
	ErrRateLimited         = &Error{Code: CodeRateLimited, Message: "rate limit exceeded"}
)

// Error is a coded failure with optional target and scanner stderr.
type Error struct {
	Code    ErrorCode
	Message string
	Target  string
	Stderr  string
	Cause   error
}

// Error implements the error interface. Scanner stderr, when present,
// is part of the message so it reaches task status and logs.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Target != "" {
		msg += fmt.Sprintf(" (target: %s)", e.Target)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Stderr != "" {
		msg += "; stderr: " + e.Stderr
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !stderrors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// New creates an error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error with the given code that wraps cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithTarget returns a copy of e with the target set.
func (e *Error) WithTarget(target string) *Error {
	cp := *e
	cp.Target = target
	return &cp
}

// ScanFailed builds a SCAN_FAILED error carrying the scanner's stderr.
func ScanFailed(stderr string, cause error) *Error {
	return &Error{
		Code:    CodeScanFailed,
		Message: "scanner exited with an error",
		Stderr:  stderr,
		Cause:   cause,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or an empty
// code when there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
