package common

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and run-disposition decisions.
type Kind string

// Stable values (logged and stored in the ledger as-is).
const (
	KindTransient       Kind = "TRANSIENT"        // rate limit, timeout, 5xx: retryable
	KindContentRejected Kind = "CONTENT_REJECTED" // model refusal: page fails, no retry
	KindMalformedOutput Kind = "MALFORMED_OUTPUT" // structurally invalid response: one retry
	KindFatalConfig     Kind = "FATAL_CONFIG"     // auth/config failure: aborts the whole run
	KindStoreWrite      Kind = "STORE_WRITE"      // artifact write failure: one retry, page fails
)

// AppError represents application-specific errors
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Run-level errors
var (
	ErrEmptySource = errors.New("no eligible page images in source folder")
)

// Error constructors
func NewAppError(kind Kind, message string, cause error) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

func TransientError(message string, cause error) *AppError {
	return NewAppError(KindTransient, message, cause)
}

func ContentRejectedError(message string, cause error) *AppError {
	return NewAppError(KindContentRejected, message, cause)
}

func MalformedOutputError(message string, cause error) *AppError {
	return NewAppError(KindMalformedOutput, message, cause)
}

func FatalConfigError(message string, cause error) *AppError {
	return NewAppError(KindFatalConfig, message, cause)
}

func StoreWriteError(message string, cause error) *AppError {
	return NewAppError(KindStoreWrite, message, cause)
}

// KindOf returns err's classification, or the empty Kind when it carries none.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsFatal reports whether err invalidates the whole run rather than one page.
func IsFatal(err error) bool {
	return KindOf(err) == KindFatalConfig || errors.Is(err, ErrEmptySource)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
