// Package errs defines the error taxonomy shared by the capture, dispatch
// and catalog packages.
//
// Codes are compared with errors.Is, so callers match on the sentinel values
// (ErrPermissionDenied, ErrMatchRequestFailed, ...) regardless of the message
// or wrapped cause.
package errs

import (
	"errors"
	"fmt"
)

const (
	CodePermissionDenied    = "PERMISSION_DENIED"
	CodeDeviceUnavailable   = "DEVICE_UNAVAILABLE"
	CodeAlreadyRecording    = "ALREADY_RECORDING"
	CodeFlushing            = "FLUSHING"
	CodeNotRecording        = "NOT_RECORDING"
	CodeSessionClosed       = "SESSION_CLOSED"
	CodeMatchRequestFailed  = "MATCH_REQUEST_FAILED"
	CodeBrowseRequestFailed = "BROWSE_REQUEST_FAILED"
	CodeInvalidInput        = "INVALID_INPUT"
)

// Error is the structured error type used across the client.
type Error struct {
	Code    string
	Message string
	Cause   error

	// Status is the HTTP status for request failures, 0 otherwise.
	Status int

	Retryable bool
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is(err, ErrDeviceUnavailable) holds for any
// DEVICE_UNAVAILABLE error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrPermissionDenied    = &Error{Code: CodePermissionDenied, Message: "microphone permission denied"}
	ErrDeviceUnavailable   = &Error{Code: CodeDeviceUnavailable, Message: "audio input device unavailable"}
	ErrAlreadyRecording    = &Error{Code: CodeAlreadyRecording, Message: "a chunk is already being recorded"}
	ErrFlushing            = &Error{Code: CodeFlushing, Message: "recorder is still flushing the previous chunk"}
	ErrNotRecording        = &Error{Code: CodeNotRecording, Message: "no chunk is being recorded"}
	ErrSessionClosed       = &Error{Code: CodeSessionClosed, Message: "capture session is closed"}
	ErrMatchRequestFailed  = &Error{Code: CodeMatchRequestFailed, Message: "match request failed"}
	ErrBrowseRequestFailed = &Error{Code: CodeBrowseRequestFailed, Message: "browse request failed"}
	ErrInvalidInput        = &Error{Code: CodeInvalidInput, Message: "invalid input"}
)

func New(code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: code == CodeMatchRequestFailed || code == CodeBrowseRequestFailed,
	}
}

func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// RequestFailed builds a MATCH_REQUEST_FAILED / BROWSE_REQUEST_FAILED error
// carrying the HTTP status (0 for transport failures).
func RequestFailed(code string, status int, message string, cause error) *Error {
	e := New(code, message, cause)
	e.Status = status
	return e
}

// Code returns the code of the first *Error in err's chain, or "".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether the caller may reasonably retry. The client
// itself never retries.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
