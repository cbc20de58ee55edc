// Package domainerrors is the registry's tagged error type. Every error that
// crosses a package boundary carries a Code so callers can decide between
// retrying, aborting, and showing a message without inspecting transport
// internals.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure.
type Code string

const (
	// CodeConfigMissing means the connection profile or credential store is
	// absent. Deployment misconfiguration; never retried.
	CodeConfigMissing Code = "config_missing"

	// CodeIdentityNotFound means the requested identity is not provisioned in
	// the credential store. Never retried.
	CodeIdentityNotFound Code = "identity_not_found"

	// CodeNetwork covers transient transport and consensus failures.
	CodeNetwork Code = "network_error"

	// CodeTimeout means a ledger deadline expired before a reply arrived.
	CodeTimeout Code = "timeout"

	// CodeLedgerRejected carries the ledger's own rejection message verbatim.
	CodeLedgerRejected Code = "ledger_rejected"

	CodeNotFound     Code = "not_found"
	CodeInvalidInput Code = "invalid_input"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeInternal     Code = "internal_error"
)

// Retryable reports whether a caller may resubmit after this kind of failure.
func (c Code) Retryable() bool {
	return c == CodeNetwork || c == CodeTimeout
}

// Fatal reports whether the failure stems from deployment or provisioning and
// will not go away on its own.
func (c Code) Fatal() bool {
	return c == CodeConfigMissing || c == CodeIdentityNotFound
}

// Error is a classified failure: kind, human-readable message and optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf is New with fmt formatting.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under code. A nil err still produces an error so that
// call sites never silently lose a failure.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// As extracts the outermost classified error from the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost classified error, or CodeInternal
// when err carries none.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err is classified with code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// IsRetryable reports whether err is a transient failure the caller may resubmit.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return CodeOf(err).Retryable()
}

// IsFatal reports whether err is a configuration or provisioning failure.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return CodeOf(err).Fatal()
}

// MessageOf returns the classified message of err, falling back to err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	if de, ok := As(err); ok {
		return de.Message
	}
	return err.Error()
}
